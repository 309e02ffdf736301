// Package status defines the closed result code enum that crosses every
// component boundary in the device core and is the thing actually encoded
// onto the wire in a Privet error reply.
package status

import "fmt"

// Status is a single closed result code. Handlers and internal components
// return a Status instead of an arbitrary error so that every failure path
// has a well-known wire representation (see pkg/dispatch for the mapping to
// a Privet error object).
type Status int

const (
	Success Status = iota

	// Generic
	NotFound
	InvalidInput
	TooLong
	InvalidArgument
	CommandNotFound

	// Auth / crypto
	DeviceCryptoNoKeys
	AuthenticationRequired
	AuthenticationFailed
	InsufficientRole
	PairingRequired
	VerificationFailed
	CryptoRandomNumberFailure
	SessionExpired
	CryptoIncomingMessageInvalid
	CryptoEncryptionFailed
	TimeRequired
	EncryptionRequired

	// Privet
	PrivetNotFound
	PrivetInvalidParam
	PrivetParseError
	PrivetResponseTooLarge

	// Value codec
	ValueInvalidInput
	ValueRepeatedMapKey
	ValueTypeMismatch
	ValueTypeUnsupported
	ValueEncodingTypeUnsupported
	ValueEncodingOutOfSpace

	// Storage
	StorageError
	StorageNotFound
	StorageBufferTooSmall
	StorageFileTooLarge
	StorageNoAvailableSpace
	StorageAlignmentError
	StorageVerifyError
	StorageNoWritableSpace

	// Command
	CommandNoAvailableBuffers

	// Pairing
	PairingPinCodeTypeUnsupported
	PairingEmbeddedCodeTypeUnsupported
	PairingPinCodeGenerationFailed
	PairingEmbeddedCodeProviderFailed
	PairingEmbeddedCodeAppendFailed
	PairingResetRequired

	// Transport / packet framing
	TransportUnexpectedPacketCounter
	TransportPacketOutOfSequence
	TransportMessageNotComplete
	TransportBufferTooSmall
)

var names = map[Status]string{
	Success:                            "success",
	NotFound:                           "not_found",
	InvalidInput:                       "invalid_input",
	TooLong:                            "too_long",
	InvalidArgument:                    "invalid_argument",
	CommandNotFound:                    "command_not_found",
	DeviceCryptoNoKeys:                 "device_crypto_no_keys",
	AuthenticationRequired:             "authentication_required",
	AuthenticationFailed:               "authentication_failed",
	InsufficientRole:                   "insufficient_role",
	PairingRequired:                    "pairing_required",
	VerificationFailed:                 "verification_failed",
	CryptoRandomNumberFailure:          "crypto_random_number_failure",
	SessionExpired:                     "session_expired",
	CryptoIncomingMessageInvalid:       "crypto_incoming_message_invalid",
	CryptoEncryptionFailed:             "crypto_encryption_failed",
	TimeRequired:                       "time_required",
	EncryptionRequired:                 "encryption_required",
	PrivetNotFound:                     "privet_not_found",
	PrivetInvalidParam:                 "privet_invalid_param",
	PrivetParseError:                   "privet_parse_error",
	PrivetResponseTooLarge:             "privet_response_too_large",
	ValueInvalidInput:                  "value_invalid_input",
	ValueRepeatedMapKey:                "value_repeated_map_key",
	ValueTypeMismatch:                  "value_type_mismatch",
	ValueTypeUnsupported:               "value_type_unsupported",
	ValueEncodingTypeUnsupported:       "value_encoding_type_unsupported",
	ValueEncodingOutOfSpace:            "value_encoding_out_of_space",
	StorageError:                       "storage_error",
	StorageNotFound:                    "storage_not_found",
	StorageBufferTooSmall:              "storage_buffer_too_small",
	StorageFileTooLarge:                "storage_file_too_large",
	StorageNoAvailableSpace:            "storage_no_available_space",
	StorageAlignmentError:              "storage_alignment_error",
	StorageVerifyError:                 "storage_verify_error",
	StorageNoWritableSpace:             "storage_no_writable_space",
	CommandNoAvailableBuffers:          "command_no_available_buffers",
	PairingPinCodeTypeUnsupported:      "pairing_pin_code_type_unsupported",
	PairingEmbeddedCodeTypeUnsupported: "pairing_embedded_code_type_unsupported",
	PairingPinCodeGenerationFailed:     "pairing_pin_code_generation_failed",
	PairingEmbeddedCodeProviderFailed:  "pairing_embedded_code_provider_failed",
	PairingEmbeddedCodeAppendFailed:    "pairing_embedded_code_append_failed",
	PairingResetRequired:               "pairing_reset_required",
	TransportUnexpectedPacketCounter:   "transport_unexpected_packet_counter",
	TransportPacketOutOfSequence:       "transport_packet_out_of_sequence",
	TransportMessageNotComplete:        "transport_message_not_complete",
	TransportBufferTooSmall:            "transport_buffer_too_small",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error lets a Status satisfy the error interface so it can be returned or
// wrapped from places that prefer the error convention.
func (s Status) Error() string {
	return s.String()
}

// OK reports whether s is Success.
func (s Status) OK() bool {
	return s == Success
}

// Disconnect groups the statuses that must be surfaced by disconnecting
// the client rather than by an in-band error reply:
// encryption-layer failures, packet-channel errors, and expiration past the
// response point. Handler-level Statuses (everything else) become an error
// reply on the same request id instead.
func (s Status) Disconnect() bool {
	switch s {
	case CryptoIncomingMessageInvalid, CryptoEncryptionFailed, SessionExpired,
		TransportUnexpectedPacketCounter, TransportPacketOutOfSequence:
		return true
	default:
		return false
	}
}
