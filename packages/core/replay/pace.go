package replay

import (
	"time"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
)

// DefaultPaceWarnThreshold is the pace above which a warning is logged
const DefaultPaceWarnThreshold = 20 * time.Second

// Pace returns the pause after step i. An explicit sleep override wins;
// otherwise it is the gap between the recorded start of step i and of the
// next step, or zero when there is no next step or a timestamp is missing.
func Pace(steps []session.Step, i int) time.Duration {
	b := steps[i].Base()
	if b.SleepOverride != nil {
		return time.Duration(*b.SleepOverride) * time.Millisecond
	}
	if i+1 >= len(steps) {
		return 0
	}
	next := steps[i+1].Base()
	if b.RecordedStart == nil || next.RecordedStart == nil {
		return 0
	}
	d := next.RecordedStart.Sub(*b.RecordedStart)
	if d < 0 {
		return 0
	}
	return d
}
