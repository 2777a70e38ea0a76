// Package clock provides the time source for the service. Tests override
// NowFunc to make SLA and escalation behaviour deterministic.
package clock

import "time"

// NowFunc returns the current time. Tests may replace it.
var NowFunc = time.Now

// Now returns the current time in UTC via NowFunc.
func Now() time.Time {
	return NowFunc().UTC()
}
