package instance

import (
	"go.uber.org/zap"

	"github.com/teranos/qxfer/logger"
)

// Options configures an instance provider
type Options struct {
	// DatabasePath is opened and migrated at bootstrap. Ignored by the
	// FromDB constructors.
	DatabasePath string

	// Version is reported as the platform version when the database has none.
	Version string

	// MaxWritesPerSecond throttles destination inserts. 0 = unlimited.
	MaxWritesPerSecond float64

	Logger *zap.SugaredLogger
}

func (o Options) logger(component string) *zap.SugaredLogger {
	log := o.Logger
	if log == nil {
		log = logger.ComponentLogger(component)
	}
	if o.DatabasePath != "" {
		log = log.With(logger.FieldPath, o.DatabasePath)
	}
	return log
}
