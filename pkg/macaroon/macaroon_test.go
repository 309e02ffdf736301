package macaroon

import (
	"bytes"
	"testing"
)

var rootKey = []byte("0123456789abcdef")

func TestMintAndValidateRoundTrip(t *testing.T) {
	m, err := Mint(rootKey, []Caveat{
		ScopeCaveat(ScopeManager),
		DelegationTimestampCaveat(1000),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	result, err := Validate(m, rootKey, Context{CurrentTime: 2000})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.GrantedScope != ScopeManager {
		t.Errorf("GrantedScope = %v, want %v", result.GrantedScope, ScopeManager)
	}
	if result.IssuedAt != 1000 {
		t.Errorf("IssuedAt = %d, want 1000", result.IssuedAt)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	m, err := MintClientAuthorizationToken(rootKey, []byte("v1"), 5000, 7)
	if err != nil {
		t.Fatalf("MintClientAuthorizationToken: %v", err)
	}

	wire, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	decoded, err := Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !bytes.Equal(decoded.Tag, m.Tag) {
		t.Errorf("decoded tag = %x, want %x", decoded.Tag, m.Tag)
	}
	if len(decoded.Caveats) != len(m.Caveats) {
		t.Fatalf("decoded caveat count = %d, want %d", len(decoded.Caveats), len(m.Caveats))
	}

	result, err := Validate(decoded, rootKey, Context{CurrentTime: 6000})
	if err != nil {
		t.Fatalf("Validate(decoded): %v", err)
	}
	if len(result.Delegatees) != 1 || result.Delegatees[0].ServiceID != 7 {
		t.Errorf("Delegatees = %+v, want one entry with ServiceID 7", result.Delegatees)
	}
}

func TestExtendNarrowsScope(t *testing.T) {
	m, err := Mint(rootKey, []Caveat{ScopeCaveat(ScopeOwner)})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	m2, err := Extend(m, ScopeCaveat(ScopeViewer))
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}

	result, err := Validate(m2, rootKey, Context{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.GrantedScope != ScopeViewer {
		t.Errorf("GrantedScope = %v, want %v (narrowest wins)", result.GrantedScope, ScopeViewer)
	}
}

func TestValidateRejectsWrongRootKey(t *testing.T) {
	m, err := Mint(rootKey, []Caveat{ScopeCaveat(ScopeUser)})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Validate(m, []byte("wrong-key-wrong-"), Context{}); err != ErrVerificationFailed {
		t.Errorf("Validate(wrong key) err = %v, want ErrVerificationFailed", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m, err := Mint(rootKey, []Caveat{
		DelegationTimestampCaveat(1000),
		ExpirationCaveat(2000),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Validate(m, rootKey, Context{CurrentTime: 3000}); err != ErrVerificationFailed {
		t.Errorf("Validate(expired) err = %v, want ErrVerificationFailed", err)
	}
}

func TestValidateRejectsSessionMismatch(t *testing.T) {
	m, err := Mint(rootKey, []Caveat{LanSessionIDCaveat([]byte("session-a"))})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Validate(m, rootKey, Context{SessionID: []byte("session-b")}); err != ErrVerificationFailed {
		t.Errorf("Validate(session mismatch) err = %v, want ErrVerificationFailed", err)
	}
}

func TestValidateRejectsUnknownCaveatType(t *testing.T) {
	m, err := Mint(rootKey, []Caveat{{Type: CaveatType(0xFF), Payload: nil}})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := Validate(m, rootKey, Context{}); err != ErrVerificationFailed {
		t.Errorf("Validate(unknown caveat) err = %v, want ErrVerificationFailed", err)
	}
}
