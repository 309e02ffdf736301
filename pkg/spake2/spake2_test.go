package spake2

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

func TestExchangeProducesMatchingSecret(t *testing.T) {
	password := []byte("0123-4567")

	device, err := New(rand.Reader, RoleDevice, password)
	if err != nil {
		t.Fatalf("New(device): %v", err)
	}
	peer, err := New(rand.Reader, RolePeer, password)
	if err != nil {
		t.Fatalf("New(peer): %v", err)
	}

	deviceCommit := wbuffer.New(make([]byte, PointSize))
	if err := device.Commit(deviceCommit); err != nil {
		t.Fatalf("device.Commit: %v", err)
	}
	peerCommit := wbuffer.New(make([]byte, PointSize))
	if err := peer.Commit(peerCommit); err != nil {
		t.Fatalf("peer.Commit: %v", err)
	}

	deviceSecret, err := device.Finalize(peerCommit.Bytes())
	if err != nil {
		t.Fatalf("device.Finalize: %v", err)
	}
	peerSecret, err := peer.Finalize(deviceCommit.Bytes())
	if err != nil {
		t.Fatalf("peer.Finalize: %v", err)
	}

	if len(deviceSecret) != PointSize {
		t.Fatalf("secret length = %d, want %d", len(deviceSecret), PointSize)
	}
	if !bytes.Equal(deviceSecret, peerSecret) {
		t.Errorf("device and peer derived different secrets:\n  device=%x\n  peer=%x", deviceSecret, peerSecret)
	}
}

func TestMismatchedPasswordsProduceDifferentSecrets(t *testing.T) {
	device, err := New(rand.Reader, RoleDevice, []byte("correct-password"))
	if err != nil {
		t.Fatalf("New(device): %v", err)
	}
	peer, err := New(rand.Reader, RolePeer, []byte("wrong-password"))
	if err != nil {
		t.Fatalf("New(peer): %v", err)
	}

	deviceCommit := wbuffer.New(make([]byte, PointSize))
	if err := device.Commit(deviceCommit); err != nil {
		t.Fatalf("device.Commit: %v", err)
	}
	peerCommit := wbuffer.New(make([]byte, PointSize))
	if err := peer.Commit(peerCommit); err != nil {
		t.Fatalf("peer.Commit: %v", err)
	}

	deviceSecret, err := device.Finalize(peerCommit.Bytes())
	if err != nil {
		t.Fatalf("device.Finalize: %v", err)
	}
	peerSecret, err := peer.Finalize(deviceCommit.Bytes())
	if err != nil {
		t.Fatalf("peer.Finalize: %v", err)
	}

	if bytes.Equal(deviceSecret, peerSecret) {
		t.Errorf("mismatched passwords produced identical secrets")
	}
}

func TestCommitTwiceIsRejected(t *testing.T) {
	s, err := New(rand.Reader, RoleDevice, []byte("pw"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := wbuffer.New(make([]byte, PointSize))
	if err := s.Commit(buf); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if err := s.Commit(buf); err != ErrWrongState {
		t.Errorf("second Commit err = %v, want ErrWrongState", err)
	}
}

func TestFinalizeRejectsBadCommitmentSize(t *testing.T) {
	s, err := New(rand.Reader, RoleDevice, []byte("pw"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := wbuffer.New(make([]byte, PointSize))
	if err := s.Commit(buf); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := s.Finalize([]byte{1, 2, 3}); err != ErrBadCommitment {
		t.Errorf("Finalize(short) err = %v, want ErrBadCommitment", err)
	}
}
