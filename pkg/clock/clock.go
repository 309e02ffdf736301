// Package clock tracks the device's wall-clock time (set by an owner, e.g.
// via /setup or the encrypted timestamp in /pairing/confirm)
// separately from process uptime, and reports whether the wall clock has
// ever been set.
//
// Grounded on original_source/src/libuweave/src/time.h/.c and
// include/uweave/provider/time.h (the uwp_time_* provider contract this
// package plays the role of, using time.Now() where the origin would call
// out to hardware).
package clock

import (
	"sync"
	"time"

	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
)

// Clock tracks whether the wall clock has been set and offsets time.Now()
// accordingly. The zero value reports time as unset.
type Clock struct {
	mu      sync.Mutex
	offset  time.Duration
	isSet   bool
	started time.Time
}

// New returns a Clock whose wall-clock time has not yet been set.
func New() *Clock {
	return &Clock{started: time.Now()}
}

// Now returns the current wall-clock time. Grounded on
// uw_time_get_timestamp_seconds_.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

// SetUnixSeconds sets the wall clock to the given unix timestamp. Grounded
// on uw_time_set_timestamp_seconds_ (the origin's UwTimeSource parameter is
// logged by the caller, not tracked here — see setup and pairing handlers).
func (c *Clock) SetUnixSeconds(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Unix(seconds, 0).Sub(time.Now())
	c.isSet = true
}

// IsSet reports whether the wall clock has been set since process start.
// Grounded on uwp_time_is_time_set.
func (c *Clock) IsSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isSet
}

// Status reports the Privet time-status value for the current clock state.
// Grounded on uw_time_get_status_ (the ppm-degradation measure it TODOs is
// not implemented there either).
func (c *Clock) Status() int64 {
	if !c.IsSet() {
		return privet.InfoTimeStatusInvalid
	}
	return privet.InfoTimeStatusOK
}

// UptimeSeconds returns seconds elapsed since this Clock was created,
// unaffected by SetUnixSeconds. Grounded on uw_time_get_uptime_seconds_.
func (c *Clock) UptimeSeconds() int64 {
	return int64(time.Since(c.started).Seconds())
}
