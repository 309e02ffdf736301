// Package session implements the encryption layer that sits between the
// connection handshake and message dispatch: a token-based (Server
// Authentication Token) handshake that derives a session key, followed by
// EAX-AEAD sealing of every subsequent message in each direction.
//
// Grounded on original_source/src/libuweave/src/channel_encryption.h/.c.
package session

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/macaroon"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcrypto"
)

// Crypto mode byte sent as the first byte of a connection request's
// handshake payload. Grounded on crypto_defines.h.
const (
	cryptoModePassthrough = 0x00
	cryptoModeEd25519HKDF = 0x01
	cryptoModeTokenSHA256 = 0x02
)

// Phase is the state of the encryption handshake/session.
type Phase int

const (
	// PhasePassthrough means no encryption negotiated: messages pass
	// through unmodified. Only reachable when a client explicitly asks for
	// it, and callers may choose to refuse it outside of development.
	PhasePassthrough Phase = iota
	// PhaseSATReceived means a token handshake is in progress: the server
	// random has been sent and an SAT' is awaited.
	PhaseSATReceived
	// PhaseInSession means the handshake completed and message_out/in are
	// sealed/opened under the derived session key.
	PhaseInSession
)

// Role identifies which side of the session this state machine plays.
type Role int

const (
	RoleDevice Role = iota
	RoleClient
)

const (
	sessionIDLen   = 16
	tagLength      = 12
	nonceLength    = 20
	clientSender   = 0x01
	serverSender   = 0x03
	randomLen      = 12
	tokenKeyMatLen = 1 + randomLen + randomLen + macaroon.MACLen
)

var (
	tokenSHA256Salt = [32]byte{
		0x00, 0x8a, 0x39, 0x36, 0x22, 0x04, 0x1f, 0x5f, 0x0f, 0xc7, 0x5d,
		0x97, 0xda, 0xee, 0x6e, 0x81, 0xcb, 0xbb, 0x2b, 0xc7, 0x4f, 0x9c,
		0xcc, 0x91, 0xe7, 0x5e, 0x77, 0xa5, 0x6b, 0x4a, 0x4b, 0x05,
	}
	tokenSessionKeyInfo = []byte("session key")
)

// State holds one connection's encryption handshake/session state. Not
// safe for concurrent use; callers serialize access per connection (see
// pkg/devicechannel, which only ever touches one connection at a time).
type State struct {
	log  *slog.Logger
	rand io.Reader
	role Role

	phase Phase

	clientRandom [randomLen]byte
	serverRandom [randomLen]byte

	sessionKey [16]byte
	// nonceBase is session id (16) || sender (1) || counter (3).
	nonceBase [sessionIDLen + 4]byte

	ourCounter   uint32
	theirCounter uint32
}

// New creates a fresh, unestablished encryption state.
func New(log *slog.Logger, role Role) *State {
	if log == nil {
		log = slog.Default()
	}
	return &State{log: log, rand: rand.Reader, role: role}
}

// SessionID returns the 16-byte session id portion of the nonce base, valid
// once a session has been established.
func (s *State) SessionID() []byte {
	return append([]byte(nil), s.nonceBase[:sessionIDLen]...)
}

// IsEncrypted reports whether the session has completed its handshake and
// message_in/message_out are sealed under a session key.
func (s *State) IsEncrypted() bool {
	return s.phase == PhaseInSession
}

var errEmptyHandshakeMessage = errors.New("session: initial handshake message is empty")
var errUnknownCryptoMode = errors.New("session: unsupported crypto mode requested")
var errAsymmetricUnsupported = errors.New("session: asymmetric handshake not implemented")
var errWrongRandomLength = errors.New("session: wrong client random length for token handshake")

// Init processes the connection request's handshake payload: the first
// byte selects a crypto mode, and for the supported token mode the
// remaining 12 bytes are the client's random nonce. On success, writes the
// device's own random nonce into out (for pass-through and the unsupported
// asymmetric mode, out is left untouched). Grounded on
// uw_channel_encryption_init_.
func (s *State) Init(requestPayload []byte, out *wbuffer.Buffer) error {
	if len(requestPayload) == 0 {
		return errEmptyHandshakeMessage
	}

	switch requestPayload[0] {
	case cryptoModePassthrough:
		s.phase = PhasePassthrough
		return nil

	case cryptoModeEd25519HKDF:
		// TODO: asymmetric handshake, never implemented upstream either.
		return errAsymmetricUnsupported

	case cryptoModeTokenSHA256:
		if len(requestPayload) != 1+randomLen {
			return errWrongRandomLength
		}
		copy(s.clientRandom[:], requestPayload[1:])
		if _, err := io.ReadFull(s.rand, s.serverRandom[:]); err != nil {
			return err
		}
		if st := out.Append(s.serverRandom[:]); !st.OK() {
			return st
		}
		s.phase = PhaseSATReceived
		return nil

	default:
		return errUnknownCryptoMode
	}
}

// buildTokenSessionKey derives the session key and nonce base from the
// handshake randoms and the SAT's recomputed tag, per
// uw_channel_encryption_build_token_sha256_session_key_.
func (s *State) buildTokenSessionKey(macTag []byte) error {
	keyMaterial := make([]byte, tokenKeyMatLen)
	keyMaterial[0] = 0x02
	copy(keyMaterial[1:], s.clientRandom[:])
	copy(keyMaterial[1+randomLen:], s.serverRandom[:])
	copy(keyMaterial[1+2*randomLen:], macTag)

	out, err := wcrypto.HKDFSHA256(keyMaterial, tokenSHA256Salt[:], tokenSessionKeyInfo)
	if err != nil {
		return err
	}
	copy(s.sessionKey[:], out[:16])
	copy(s.nonceBase[:sessionIDLen], out[16:32])
	s.ourCounter = 0
	s.theirCounter = 0
	return nil
}

// ProcessIn processes one inbound message according to the current phase:
// pass-through (no-op), token handshake (validate the SAT' and complete the
// handshake), or an established session (decrypt message in place).
// Grounded on uw_channel_encryption_process_in_.
func (s *State) ProcessIn(id *identity.Identity, messageIn, messageOut *wbuffer.Buffer) status.Status {
	switch s.phase {
	case PhasePassthrough:
		return status.Success

	case PhaseSATReceived:
		return s.handshakeSAT(id, messageIn, messageOut)

	case PhaseInSession:
		in := messageIn.Bytes()

		s.theirCounter++
		if s.theirCounter&0x00ffffff == 0 {
			s.log.Error("client message counter rolled over")
			return status.CryptoIncomingMessageInvalid
		}
		s.setNonceSender(s.role == RoleDevice, false)
		s.setNonceCounter(s.theirCounter)

		plain, err := wcrypto.Open(s.sessionKey[:], s.nonceBase[:nonceLength], nil, in, tagLength)
		if err != nil {
			s.log.Error("could not decrypt session message")
			return status.CryptoIncomingMessageInvalid
		}
		messageIn.Reset()
		if st := messageIn.Append(plain); !st.OK() {
			return st
		}
		return status.Success

	default:
		return status.CryptoIncomingMessageInvalid
	}
}

// ProcessOut seals an outbound message in place once the session is
// established; a no-op in pass-through and an error mid-handshake.
// Grounded on uw_channel_encryption_process_out_.
func (s *State) ProcessOut(messageOut *wbuffer.Buffer) status.Status {
	switch s.phase {
	case PhasePassthrough:
		return status.Success

	case PhaseSATReceived:
		s.log.Error("application tried to send a message mid-handshake")
		return status.InvalidArgument

	case PhaseInSession:
		if messageOut.Len()+tagLength > messageOut.Cap() {
			s.log.Error("output buffer too small to encrypt with tag")
			return status.TooLong
		}

		// Allowing more than 2^24-1 messages per key requires increasing the
		// tag size accordingly. Reusing a counter with the same session key
		// is never safe.
		s.ourCounter++
		if s.ourCounter&0x00ffffff == 0 {
			s.log.Error("maximum messages per session reached")
			return status.CryptoEncryptionFailed
		}
		s.setNonceSender(s.role == RoleDevice, true)
		s.setNonceCounter(s.ourCounter)

		sealed, err := wcrypto.Seal(s.sessionKey[:], s.nonceBase[:nonceLength], nil, messageOut.Bytes(), tagLength)
		if err != nil {
			s.log.Error("could not encrypt session message")
			return status.CryptoEncryptionFailed
		}
		messageOut.Reset()
		if st := messageOut.Append(sealed); !st.OK() {
			return st
		}
		return status.Success

	default:
		return status.NotFound
	}
}

// setNonceSender sets byte 16 of the nonce base to the sender id for either
// our own outbound traffic (outbound=true) or the peer's inbound traffic.
func (s *State) setNonceSender(weAreDevice, outbound bool) {
	// Device sends as server, receives from client; client is the mirror.
	var sender byte
	switch {
	case outbound && weAreDevice:
		sender = serverSender
	case outbound && !weAreDevice:
		sender = clientSender
	case !outbound && weAreDevice:
		sender = clientSender
	default:
		sender = serverSender
	}
	s.nonceBase[sessionIDLen] = sender
}

func (s *State) setNonceCounter(counter uint32) {
	s.nonceBase[sessionIDLen+1] = byte(counter >> 16)
	s.nonceBase[sessionIDLen+2] = byte(counter >> 8)
	s.nonceBase[sessionIDLen+3] = byte(counter)
}

const maxDecodedSATSize = 256

// handshakeSAT validates the client's re-delegated Server Authentication
// Token (SAT'), signs a server-authentication challenge response, and
// completes the handshake by deriving the session key. Grounded on
// handshake_sat_helper.
func (s *State) handshakeSAT(id *identity.Identity, messageIn, messageOut *wbuffer.Buffer) status.Status {
	if !id.HasDeviceAuthKey {
		return status.PairingRequired
	}

	in := messageIn.Bytes()
	if len(in) > maxDecodedSATSize {
		s.log.Error("incoming SAT' too large")
		return status.CryptoIncomingMessageInvalid
	}

	sat, err := macaroon.Deserialize(in)
	if err != nil {
		s.log.Error("could not decode incoming SAT'")
		return status.CryptoIncomingMessageInvalid
	}

	satNonce := make([]byte, 1+2*randomLen)
	satNonce[0] = 0x01
	copy(satNonce[1:], s.clientRandom[:])
	copy(satNonce[1+randomLen:], s.serverRandom[:])

	validationCtx := macaroon.Context{AuthChallenge: satNonce}
	if _, err := macaroon.Validate(sat, id.DeviceAuthKey[:], validationCtx); err != nil {
		s.log.Error("incoming SAT' is invalid")
		return status.VerificationFailed
	}

	if len(sat.Caveats) == 0 {
		return status.CryptoIncomingMessageInvalid
	}
	sat2, err := macaroon.Mint(id.DeviceAuthKey[:], sat.Caveats[:len(sat.Caveats)-1])
	if err != nil {
		s.log.Error("could not recreate SAT")
		return status.CryptoIncomingMessageInvalid
	}

	challengeNonce := make([]byte, 1+2*randomLen)
	challengeNonce[0] = 0x02
	copy(challengeNonce[1:], s.clientRandom[:])
	copy(challengeNonce[1+randomLen:], s.serverRandom[:])
	challengeCaveat := macaroon.AuthenticationChallengeCaveat(challengeNonce)

	signed, err := macaroon.Extend(&macaroon.Macaroon{Tag: sat2.Tag}, challengeCaveat)
	if err != nil {
		s.log.Error("could not sign caveat for server authentication")
		return status.CryptoIncomingMessageInvalid
	}
	if st := messageOut.Append(signed.Tag); !st.OK() {
		return st
	}

	if err := s.buildTokenSessionKey(sat2.Tag); err != nil {
		return status.CryptoIncomingMessageInvalid
	}
	s.phase = PhaseInSession
	s.log.Info("session established")
	return status.Success
}
