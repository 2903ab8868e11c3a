package lidartest

import (
	"testing"

	"github.com/edaniels/golog"
	"go.uber.org/zap/zaptest"
)

// NewLogger directs a package's golog.Logger output at the running test's
// own logger, the way testutils/log.go does, so test failures come with
// in-context Debugw/Infow output instead of the stderr-hungry
// NewDevelopmentLogger default.
func NewLogger(t *testing.T) golog.Logger {
	return zaptest.NewLogger(t).Sugar()
}
