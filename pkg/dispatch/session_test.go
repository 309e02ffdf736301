package dispatch

import (
	"testing"
	"time"

	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/session"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
)

func TestSessionRoleAtLeast(t *testing.T) {
	s := NewSession(nil)
	s.SetRole(privet.RoleManager)
	if st := s.RoleAtLeast(privet.RoleManager); !st.OK() {
		t.Fatalf("expected manager to satisfy manager: %v", st)
	}
	if st := s.RoleAtLeast(privet.RoleOwner); st.OK() {
		t.Fatalf("expected manager to fail owner requirement")
	}
}

func TestSessionCheckExpiration(t *testing.T) {
	s := NewSession(nil)
	if st := s.CheckExpiration(time.Unix(1000, 0)); !st.OK() {
		t.Fatalf("expected no expiration set to always pass: %v", st)
	}
	s.SetExpirationTime(1000)
	if st := s.CheckExpiration(time.Unix(999, 0)); !st.OK() {
		t.Fatalf("expected not-yet-expired to pass: %v", st)
	}
	if st := s.CheckExpiration(time.Unix(1000, 0)); st != status.SessionExpired {
		t.Fatalf("expected SessionExpired at the boundary, got %v", st)
	}
}

func TestSessionInvalidatePreservesCrypto(t *testing.T) {
	crypto := &session.State{}
	s := NewSession(crypto)
	s.StartValid()
	s.SetRole(privet.RoleOwner)
	s.SetAccessControlAuthorized(true)

	s.Invalidate()
	if s.IsValid() {
		t.Fatalf("expected invalidated session to be invalid")
	}
	if s.Role() != privet.RoleUnspecified {
		t.Fatalf("expected role reset, got %v", s.Role())
	}
	if s.IsAccessControlAuthorized() {
		t.Fatalf("expected access-control authorization reset")
	}
	if s.Crypto != crypto {
		t.Fatalf("expected crypto state to survive Invalidate")
	}
}
