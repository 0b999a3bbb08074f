package transfer

import (
	"strings"

	"github.com/teranos/qxfer/errors"
)

// Stage identifies one phase of a transfer.
type Stage string

const (
	StageSchemas       Stage = "schemas"
	StageEntities      Stage = "entities"
	StageLinks         Stage = "links"
	StageMedia         Stage = "media"
	StageConfiguration Stage = "configuration"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageSchemas,
	StageEntities,
	StageLinks,
	StageMedia,
	StageConfiguration,
}

// EntityAggregateKey subdivides the entities stage counters by content type.
const EntityAggregateKey = "type"

// Valid reports whether s is one of the fixed stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// ParseStage converts a user-supplied stage name.
func ParseStage(name string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", errors.WithHintf(
			errors.NewInvalidOptionsError("unknown stage %q", name),
			"valid stages: %s", stageList(),
		)
	}
	return s, nil
}

// ParseStages converts a list of stage names, rejecting unknown ones.
func ParseStages(names []string) ([]Stage, error) {
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		s, err := ParseStage(name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}

func stageList() string {
	names := make([]string, len(Stages))
	for i, s := range Stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
