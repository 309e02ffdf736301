package device

// WorkState reports whether the device's services did anything on the
// last call to HandleEvents. Grounded on UwDeviceWorkState.
type WorkState int

const (
	WorkStateIdle WorkState = iota
	WorkStateBusy
)

// String implements fmt.Stringer.
func (s WorkState) String() string {
	if s == WorkStateBusy {
		return "busy"
	}
	return "idle"
}
