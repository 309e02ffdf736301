package wcrypto

import (
	"bytes"
	"testing"
)

func TestEAXSealOpenRoundTrip(t *testing.T) {
	key := unhex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	nonce := unhex(t, "000102030405060708090a0b0c0d0e0f10111213")
	ad := []byte("session header")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	sealed, err := Seal(key, nonce, ad, plaintext, 12)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) != len(plaintext)+12 {
		t.Fatalf("sealed length = %d, want %d", len(sealed), len(plaintext)+12)
	}

	got, err := Open(key, nonce, ad, sealed, 12)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open round trip = %q, want %q", got, plaintext)
	}
}

func TestEAXOpenRejectsTampering(t *testing.T) {
	key := unhex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	nonce := unhex(t, "000102030405060708090a0b0c0d0e0f10111213")
	ad := []byte("session header")
	plaintext := []byte("payload")

	sealed, err := Seal(key, nonce, ad, plaintext, 12)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[0] ^= 0x01
	if _, err := Open(key, nonce, ad, tampered, 12); err != ErrAuthenticationFailed {
		t.Errorf("Open(tampered ciphertext) err = %v, want ErrAuthenticationFailed", err)
	}

	tamperedAD := append([]byte(nil), ad...)
	tamperedAD[0] ^= 0x01
	if _, err := Open(key, nonce, tamperedAD, sealed, 12); err != ErrAuthenticationFailed {
		t.Errorf("Open(tampered ad) err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestEAXDistinctNoncesProduceDistinctCiphertext(t *testing.T) {
	key := unhex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	ad := []byte("ad")
	plaintext := []byte("same plaintext every time")

	nonce1 := unhex(t, "000102030405060708090a0b0c0d0e0f10111213")
	nonce2 := unhex(t, "000102030405060708090a0b0c0d0e0f10111214")

	sealed1, err := Seal(key, nonce1, ad, plaintext, 12)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed2, err := Seal(key, nonce2, ad, plaintext, 12)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(sealed1, sealed2) {
		t.Errorf("distinct nonces produced identical sealed output")
	}
}
