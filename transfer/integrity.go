package transfer

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/qxfer/errors"
)

// VersionMatching selects how strictly source and destination versions must agree.
type VersionMatching string

const (
	VersionIgnore VersionMatching = "ignore"
	VersionExact  VersionMatching = "exact"
	VersionMajor  VersionMatching = "major"
	VersionMinor  VersionMatching = "minor"
	VersionPatch  VersionMatching = "patch"
)

// ParseVersionMatching converts a user-supplied strategy name. Empty means ignore.
func ParseVersionMatching(name string) (VersionMatching, error) {
	switch m := VersionMatching(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return VersionIgnore, nil
	case VersionIgnore, VersionExact, VersionMajor, VersionMinor, VersionPatch:
		return m, nil
	default:
		return "", errors.WithHint(
			errors.NewInvalidOptionsError("unknown version matching strategy %q", name),
			"use one of: ignore, exact, major, minor, patch",
		)
	}
}

// CheckVersions decides whether source and destination are compatible under
// strategy. A missing version on either side cannot be verified and passes.
// A failure wraps ErrIncompatibleVersion and names both versions and the strategy.
func CheckVersions(source, destination string, strategy VersionMatching) error {
	if source == "" || destination == "" {
		return nil
	}

	switch strategy {
	case VersionIgnore, "":
		return nil
	case VersionExact:
		if source == destination {
			return nil
		}
		return incompatible(source, destination, strategy, nil)
	case VersionMajor, VersionMinor, VersionPatch:
		return checkSemantic(source, destination, strategy)
	default:
		return errors.NewInvalidOptionsError("unknown version matching strategy %q", string(strategy))
	}
}

// Compatible is CheckVersions reduced to a verdict.
func Compatible(source, destination string, strategy VersionMatching) bool {
	return CheckVersions(source, destination, strategy) == nil
}

// checkSemantic compares the leading numeric tokens the strategy requires.
func checkSemantic(source, destination string, strategy VersionMatching) error {
	src, err := semver.NewVersion(source)
	if err != nil {
		return incompatible(source, destination, strategy, errors.Wrapf(err, "parse source version %q", source))
	}
	dst, err := semver.NewVersion(destination)
	if err != nil {
		return incompatible(source, destination, strategy, errors.Wrapf(err, "parse destination version %q", destination))
	}

	ok := src.Major() == dst.Major()
	if ok && (strategy == VersionMinor || strategy == VersionPatch) {
		ok = src.Minor() == dst.Minor()
	}
	if ok && strategy == VersionPatch {
		ok = src.Patch() == dst.Patch()
	}
	if ok {
		return nil
	}
	return incompatible(source, destination, strategy, nil)
}

func incompatible(source, destination string, strategy VersionMatching, cause error) error {
	err := errors.Wrapf(errors.ErrIncompatibleVersion,
		"source version %s does not match destination version %s (strategy %q)",
		source, destination, string(strategy))
	if cause != nil {
		err = errors.WithSecondaryError(err, cause)
		err = errors.WithDetail(err, cause.Error())
	}
	return errors.WithHint(err, "align the two versions or relax --version-matching")
}
