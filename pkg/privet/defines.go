// Package privet holds the wire-format integer constants shared by every
// RPC handler and by pkg/command and pkg/dispatch: map keys and enumerated
// values for the Privet-style CBOR request/reply envelope, the per-command
// object used by /commands/*, and each built-in API's own request/response
// shapes.
//
// Grounded on original_source/src/libuweave/src/privet_defines.h.
package privet

// Keys used at the root of a request/reply envelope.
const (
	RPCKeyVersion   = 0
	RPCKeyAPIID     = 1
	RPCKeyRequestID = 2
	RPCKeyError     = 3
	RPCKeyParams    = 16
	RPCKeyResult    = 17
)

// Keys used in an error object. The error code corresponds to a
// pkg/status.Status value.
const (
	RPCErrorKeyCode    = 4
	RPCErrorKeyMessage = 5
	RPCErrorKeyData    = 6
)

// RPCValueVersion is the expected value of the envelope's version field.
const RPCValueVersion = 2

// APIKeyVersion is the key for the per-API version field carried in params
// or result.
const APIKeyVersion = 0

// APIValueVersion is the Privet API version this device core implements,
// not to be confused with RPCValueVersion.
const APIValueVersion = 3

// Fields used in the param of an auth command.
const (
	AuthKeyMode            = 0
	DeprecatedAuthKeyRole  = 1
	AuthKeyAuthCode        = 2
	AuthKeyGenRefreshToken = 3
)

// Values used in AuthKeyMode.
const (
	AuthModeAnonymous = 0
	AuthModePairing   = 1
	AuthModeToken     = 2
)

// Fields used in the response of an auth command.
const (
	AuthResponseKeyRole       = 0
	AuthResponseKeyTime       = 1
	AuthResponseKeyTimeStatus = 2
)

// Fields used in the response of an accesscontrol/claim command.
const AccessControlClaimResponseKeyClientToken = 0

// Fields used in the request of an accesscontrol/confirm command.
const AccessControlConfirmRequestKeyClientToken = 0

// MagicDebugTrait is the out-of-band trait id used for the /debug call.
const MagicDebugTrait = 0xffff

// Debug trait command names.
const (
	DebugNameMetrics    = 0
	DebugNameTraceQuery = 1
	DebugNameTraceDump  = 2
)

// Sub-parameters of the debug call.
const DebugKeyTraceDumpParameters = 0

// /debug/trace_dump parameters.
const (
	DebugTraceDumpKeyStart = 0
	DebugTraceDumpKeyEnd   = 1
)

// /debug response keys.
const (
	DebugResponseKeyMetrics          = 0
	DebugResponseKeyTraceQueryResult = 1
	DebugResponseKeyTraceDumpResult  = 2
)

// /debug/metrics entry keys.
const (
	DebugMetricsKeyGenerationID        = 0
	DebugMetricsKeyGenerationTimestamp = 1
	DebugMetricsKeyTimestampNow        = 2
	DebugMetricsKeyMetrics             = 3
	DebugMetricsKeyVendorMetrics       = 4
)

// /debug/trace_query result keys.
const (
	DebugQueryResultKeyFirst = 0
	DebugQueryResultKeyLast  = 1
)

// /debug result keys: /debug/trace_dump returns an array of entries.
const DebugTraceDumpResultKeyDump = 0

// /debug/trace_dump entries.
const (
	DebugTraceDumpResultEntryKeyType      = 0
	DebugTraceDumpResultEntryKeyTimestamp = 1
	DebugTraceDumpResultEntryKeyID        = 2
	DebugTraceDumpResultEntryKeyParams    = 3
)

// Param values for the trace entries, keyed by trace entry type.
const (
	// AuthResult
	DebugTraceParamsKeyAuthMode = 0
	DebugTraceParamsKeyAuthRole = 1
	// Ble
	DebugTraceParamsKeyBLEEvent = 0
	DebugTraceParamsKeyBLEState = 1
	// CallBegin/End
	DebugTraceParamsKeyCallAPIID  = 0
	DebugTraceParamsKeyCallStatus = 1
	// CommandExecute
	DebugTraceParamsKeyCommandExecuteTrait = 0
	DebugTraceParamsKeyCommandExecuteName  = 1
	// Session
	DebugTraceParamsKeySessionType   = 0
	DebugTraceParamsKeySessionStatus = 1
)

// Fields used in the param of an execute command.
const (
	ExecuteKeyTrait = 0
	ExecuteKeyName  = 1
	ExecuteKeyParam = 2
)

// Fields used in a command object, returned by several commands including
// /commands/{execute,status,list,cancel}.
const (
	CommandObjKeyAPIID     = 0
	CommandObjKeyParams    = 1
	CommandObjKeyState     = 4
	CommandObjKeyCommandID = 5
	CommandObjKeyResult    = 17
	CommandObjKeyError     = 18
	CommandObjKeyProgress  = 19
)

// Values used in CommandObjKeyState.
const (
	CommandObjStateDone       = 0
	CommandObjStateInProgress = 1
	CommandObjStateError      = 2
	CommandObjStateQueued     = 3
	CommandObjStateCancelled  = 4
)

// Fields used in the response of an info reply.
const (
	InfoKeyVersion         = 0
	InfoKeyAuth            = 2
	InfoKeyModelManifestID = 3
	InfoKeyDeviceID        = 4
	InfoKeyName            = 6
	InfoKeyTimestamp       = 10
	InfoKeyTimeStatus      = 11
	InfoKeyBuild           = 21
)

// Fields used in the authentication object of an info reply.
const (
	InfoAuthKeyMode              = 0
	InfoAuthKeyPairing           = 1
	InfoAuthKeyCrypto            = 2
	InfoAuthValuePairingPin      = 0
	InfoAuthValuePairingEmbedded = 1
	InfoAuthValueCryptoSpakeP224 = 0
)

// Values used for the time status of an info reply.
const (
	InfoTimeStatusOK       = 0
	InfoTimeStatusDegraded = 1
	InfoTimeStatusInvalid  = 2
)

// Fields used in a /pairing/start request.
const (
	PairingStartKeyPairing = 0
	PairingStartKeyCrypto  = 1
)

// Fields used in a /pairing/start reply.
const (
	PairingStartKeySessionID        = 0
	PairingStartKeyDeviceCommitment = 1
)

// Fields used in a /pairing/confirm request.
const (
	PairingConfirmKeySessionID            = 0
	PairingConfirmKeyClientCommitment      = 1
	PairingConfirmKeyTimestamp             = 2
	PairingConfirmTimestampMapKeyTimestamp = 0
)

// Fields used in a /pairing/confirm reply.
const (
	PairingConfirmKeyEncryptedTokens    = 0
	PairingConfirmKeyPairingCATMacaroon = 0
	PairingConfirmKeySATMacaroon        = 1
)

// Fields used in the response of a state reply.
const (
	StateKeyFingerprint = 0
	StateKeyComponents  = 1
)

// StateKeyComponentState is a key within each state component entry.
const StateKeyComponentState = 0

// Fields used in the request/response for setup/? commands.
const (
	SetupKeyVersion   = 0
	SetupKeyName      = 1
	SetupKeyTimestamp = 4
)

// SetupNameMaxLength bounds the device name's length.
const SetupNameMaxLength = 32
