package packetchannel

// State is shared between MessageIn and MessageOut.
type State int

const (
	// StateError means the message is invalid and must be reset.
	StateError State = iota
	// StateEmpty means no packet has been appended/retrieved yet.
	StateEmpty
	// StateBusy means at least one packet has been processed but more are
	// expected.
	StateBusy
	// StateComplete means every packet of the message has been processed;
	// the message must be reset before reuse.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateEmpty:
		return "empty"
	case StateBusy:
		return "busy"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Type identifies what kind of message a sequence of packets carries.
type Type int

const (
	TypeUnknown Type = iota
	TypeConnectionRequest
	TypeConnectionConfirm
	TypeError
	TypeData
)

// headerCmd returns the control-header command for control message types.
// ok is false for TypeData and TypeUnknown, which have no control command.
func (t Type) headerCmd() (Cmd, bool) {
	switch t {
	case TypeConnectionRequest:
		return CmdConnectionRequest, true
	case TypeConnectionConfirm:
		return CmdConnectionConfirm, true
	case TypeError:
		return CmdError, true
	default:
		return 0, false
	}
}

func messageTypeFromHeader(header byte) Type {
	if IsData(header) {
		return TypeData
	}
	switch Cmd(CommandNumber(header)) {
	case CmdConnectionRequest:
		return TypeConnectionRequest
	case CmdConnectionConfirm:
		return TypeConnectionConfirm
	case CmdError:
		return TypeError
	default:
		return TypeUnknown
	}
}
