// Package pairing implements the /pairing/start and /pairing/confirm calls:
// running a SPAKE2 password exchange over a shared pairing code, then
// minting and encrypting the client authorization and server authentication
// tokens the client needs to establish an authenticated session.
//
// Grounded on original_source/src/libuweave/src/pairing_request.c.
package pairing

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/macaroon"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
	"github.com/mahmed8003/esp8266-weave-test/pkg/spake2"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcrypto"
)

const (
	eaxTagLength        = 12
	timestampNonce byte = 0
	tokensNonce    byte = 1
	// notCloudRegistered marks a freshly-minted client authorization token as
	// not yet delegated to any cloud service. Grounded on
	// kUwMacaroonCaveatCloudServiceIdNotCloudRegistered.
	notCloudRegistered uint8 = 0
)

// Handler implements /pairing/start and /pairing/confirm.
type Handler struct {
	log      *slog.Logger
	rand     io.Reader
	identity *identity.Identity
	settings *settings.Settings
	clock    *clock.Clock
}

// New constructs a pairing Handler.
func New(log *slog.Logger, id *identity.Identity, s *settings.Settings, clk *clock.Clock) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, rand: rand.Reader, identity: id, settings: s, clock: clk}
}

func (h *Handler) generateSessionID() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(h.rand, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// generatePasscode draws a random 4-digit PIN. The origin's
// generate_pairing_passcode is a hardcoded "7777" placeholder explicitly
// flagged STOPSHIP; this derives one from the configured random source
// instead.
func (h *Handler) generatePasscode() (string, error) {
	var buf [2]byte
	if _, err := io.ReadFull(h.rand, buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", binary.BigEndian.Uint16(buf[:])%10000), nil
}

// HandleStart services /pairing/start: picks a pairing code, begins a SPAKE2
// exchange over it, and replies with the device's commitment. Grounded on
// uw_pairing_start_reply_.
func (h *Handler) HandleStart(req *dispatch.Request) status.Status {
	if len(req.Params()) == 0 {
		return status.PrivetInvalidParam
	}
	if !h.settings.EnableMultipairing && h.identity.HasClientAuthzKey {
		return status.PairingResetRequired
	}

	v, st := wcbor.Decode(req.Params())
	if !st.OK() {
		return status.PrivetInvalidParam
	}
	params, ok := v.Map()
	if !ok {
		return status.PrivetInvalidParam
	}

	pairingParam, hasPairing := params.Get(privet.PairingStartKeyPairing)
	cryptoParam, hasCrypto := params.Get(privet.PairingStartKeyCrypto)
	if !hasPairing || !hasCrypto {
		return status.PrivetInvalidParam
	}
	if cryptoParam.Int != privet.InfoAuthValueCryptoSpakeP224 {
		return status.PrivetInvalidParam
	}

	var pairingType settings.PairingType
	var passcode string

	switch pairingParam.Int {
	case privet.InfoAuthValuePairingPin:
		pairingType = settings.PairingTypePinCode
		if h.settings.SupportedPairingTypes&pairingType == 0 {
			return status.PairingPinCodeTypeUnsupported
		}
		pin, err := h.generatePasscode()
		if err != nil {
			return status.PairingPinCodeGenerationFailed
		}
		passcode = pin

	case privet.InfoAuthValuePairingEmbedded:
		pairingType = settings.PairingTypeEmbeddedCode
		if h.settings.SupportedPairingTypes&pairingType == 0 {
			return status.PairingEmbeddedCodeTypeUnsupported
		}
		code, ok := h.settings.EmbeddedCode.Get()
		if !ok {
			return status.PairingEmbeddedCodeProviderFailed
		}
		passcode = code

	default:
		return status.PrivetInvalidParam
	}

	spakeState, err := spake2.New(h.rand, spake2.RoleDevice, []byte(passcode))
	if err != nil {
		return status.CryptoRandomNumberFailure
	}

	commitment := wbuffer.New(make([]byte, spake2.PointSize))
	if err := spakeState.Commit(commitment); err != nil {
		return status.PrivetInvalidParam
	}

	sessionID, err := h.generateSessionID()
	if err != nil {
		return status.CryptoRandomNumberFailure
	}

	if h.settings.PairingCallback.Begin != nil {
		if !h.settings.PairingCallback.Begin(sessionID, pairingType, passcode) {
			return status.PrivetInvalidParam
		}
	}

	req.Session().BeginPairing(sessionID, spakeState, append([]byte(nil), commitment.Bytes()...))

	return req.Reply(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.PairingStartKeySessionID, Value: wcbor.Int(int64(sessionID))},
		wcbor.MapEntry{Key: privet.PairingStartKeyDeviceCommitment, Value: wcbor.BytesVal(commitment.Bytes())},
	))
}

// setTimeFromEncryptedTimestamp decrypts the optional timestamp param under
// the just-established pairing key and sets the wall clock from it.
// Grounded on set_time_from_encrypted_timestamp_.
func (h *Handler) setTimeFromEncryptedTimestamp(encrypted, pairingKey []byte) status.Status {
	plain, err := wcrypto.Open(pairingKey, []byte{timestampNonce}, nil, encrypted, eaxTagLength)
	if err != nil {
		return status.InvalidArgument
	}
	v, st := wcbor.Decode(plain)
	if !st.OK() {
		return status.InvalidArgument
	}
	m, ok := v.Map()
	if !ok {
		return status.InvalidArgument
	}
	ts, ok := m.Get(privet.PairingConfirmTimestampMapKeyTimestamp)
	if !ok || ts.Kind != wcbor.KindInt {
		return status.InvalidArgument
	}
	h.clock.SetUnixSeconds(ts.Int)
	return status.Success
}

func (h *Handler) mintTokens(pairingKey []byte) ([]byte, []byte, status.Status) {
	cat, err := macaroon.MintClientAuthorizationToken(pairingKey, nil, macaroon.FromUnix(h.clock.Now().Unix()), notCloudRegistered)
	if err != nil {
		return nil, nil, status.InvalidArgument
	}
	catWire, err := cat.Serialize()
	if err != nil {
		return nil, nil, status.InvalidArgument
	}

	satNonce := make([]byte, 16)
	if _, err := io.ReadFull(h.rand, satNonce); err != nil {
		return nil, nil, status.InvalidArgument
	}
	sat, err := macaroon.MintServerAuthenticationToken(h.identity.DeviceAuthKey[:], nil, satNonce)
	if err != nil {
		return nil, nil, status.InvalidArgument
	}
	satWire, err := sat.Serialize()
	if err != nil {
		return nil, nil, status.InvalidArgument
	}

	return catWire, satWire, status.Success
}

func (h *Handler) encryptTokens(pairingKey, catWire, satWire []byte) ([]byte, status.Status) {
	tokens := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.PairingConfirmKeyPairingCATMacaroon, Value: wcbor.BytesVal(catWire)},
		wcbor.MapEntry{Key: privet.PairingConfirmKeySATMacaroon, Value: wcbor.BytesVal(satWire)},
	)
	encoded, st := wcbor.Encode(tokens)
	if !st.OK() {
		return nil, st
	}
	sealed, err := wcrypto.Seal(pairingKey, []byte{tokensNonce}, nil, encoded, eaxTagLength)
	if err != nil {
		return nil, status.InvalidArgument
	}
	return sealed, status.Success
}

// HandleConfirm services /pairing/confirm: finalizes the SPAKE2 exchange
// begun by /pairing/start, remembers the resulting pairing key, optionally
// sets the wall clock from an encrypted timestamp, and replies with a fresh
// CAT/SAT pair encrypted under that key. Grounded on
// uw_pairing_confirm_reply_.
func (h *Handler) HandleConfirm(req *dispatch.Request) status.Status {
	if len(req.Params()) == 0 {
		return status.PrivetInvalidParam
	}
	v, st := wcbor.Decode(req.Params())
	if !st.OK() {
		return status.PrivetInvalidParam
	}
	params, ok := v.Map()
	if !ok {
		return status.PrivetInvalidParam
	}

	sessionIDParam, hasSessionID := params.Get(privet.PairingConfirmKeySessionID)
	clientCommitmentParam, hasCommitment := params.Get(privet.PairingConfirmKeyClientCommitment)
	if !hasSessionID || !hasCommitment || clientCommitmentParam.Kind != wcbor.KindBytes {
		return status.PrivetInvalidParam
	}
	if len(clientCommitmentParam.Bytes) != spake2.PointSize {
		return status.PrivetInvalidParam
	}

	sess := req.Session()
	if sess.PairingState() == nil || uint32(sessionIDParam.Int) != sess.PairingSessionID() {
		return status.PrivetInvalidParam
	}

	pairingKey, err := sess.PairingState().Finalize(clientCommitmentParam.Bytes)
	if err != nil {
		return status.PrivetInvalidParam
	}

	if err := h.identity.RememberPairingKey(pairingKey, uint64(h.clock.Now().Unix())); err != nil {
		return status.PrivetInvalidParam
	}

	// Only the first 16 bytes of the pairing key are used as the AES-128 key.
	aesKey := pairingKey[:16]

	if tsParam, ok := params.Get(privet.PairingConfirmKeyTimestamp); ok && tsParam.Kind == wcbor.KindBytes {
		if st := h.setTimeFromEncryptedTimestamp(tsParam.Bytes, aesKey); !st.OK() {
			return status.PrivetInvalidParam
		}
	} else {
		h.log.Warn("pairing/confirm: no encrypted timestamp provided")
	}

	catWire, satWire, st := h.mintTokens(aesKey)
	if !st.OK() {
		return st
	}
	encryptedTokens, st := h.encryptTokens(aesKey, catWire, satWire)
	if !st.OK() {
		return st
	}

	if h.settings.PairingCallback.End != nil {
		if !h.settings.PairingCallback.End(sess.PairingSessionID()) {
			return status.PrivetInvalidParam
		}
	}

	return req.Reply(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.PairingConfirmKeyEncryptedTokens, Value: wcbor.BytesVal(encryptedTokens)},
	))
}
