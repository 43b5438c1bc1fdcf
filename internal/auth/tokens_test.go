package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, opts ...TokenIssuerOption) *TokenIssuer {
	t.Helper()
	opts = append([]TokenIssuerOption{
		WithIssuer("akademia-test"),
		WithTokenClock(testClock),
	}, opts...)
	ti, err := NewTokenIssuer("test-secret-please-rotate", opts...)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return ti
}

func TestTokenRoundTrip(t *testing.T) {
	ti := newTestIssuer(t)
	user := &User{ID: "user-1", TokenVersion: 3}

	access, exp, err := ti.SignAccess(user)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	if !exp.Equal(testTime.UTC().Add(ti.AccessTTL())) {
		t.Fatalf("unexpected access expiry: %v", exp)
	}

	claims, err := ti.VerifyAccess(access)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != "user-1" || claims.TokenVersion != 3 {
		t.Fatalf("claims round trip: %+v", claims)
	}
	if claims.Issuer != "akademia-test" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestTokenTypeDiscrimination(t *testing.T) {
	ti := newTestIssuer(t)
	user := &User{ID: "user-1"}

	access, _, err := ti.SignAccess(user)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	refresh, _, err := ti.SignRefresh(user, NewChainID())
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	if _, err := ti.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("access token accepted as refresh token")
	}
	if _, err := ti.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("refresh token accepted as access token")
	}
}

func TestTokenExpiry(t *testing.T) {
	clock := testTime
	ti := newTestIssuer(t, WithTokenClock(func() time.Time { return clock }))
	user := &User{ID: "user-1"}

	access, _, err := ti.SignAccess(user)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	clock = testTime.Add(ti.AccessTTL() + time.Minute)
	if _, err := ti.VerifyAccess(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("expired token accepted")
	}
}

func TestTokenTamperingRejected(t *testing.T) {
	ti := newTestIssuer(t)
	user := &User{ID: "user-1"}

	access, _, err := ti.SignAccess(user)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	parts := strings.Split(access, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := ti.VerifyAccess(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("tampered payload accepted")
	}

	other := newTestIssuer(t)
	other.secret = []byte("a-different-secret")
	if _, err := other.VerifyAccess(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("token verified under wrong secret")
	}
}

func TestSignRefreshRequiresChainID(t *testing.T) {
	ti := newTestIssuer(t)
	if _, _, err := ti.SignRefresh(&User{ID: "user-1"}, " "); err == nil {
		t.Fatal("blank jti accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	ti := newTestIssuer(t)
	for _, tok := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ti.VerifyAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("garbage %q not rejected", tok)
		}
	}
}

func TestChainIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool, 64)
	for i := 0; i < 64; i++ {
		id := NewChainID()
		if id == "" || seen[id] {
			t.Fatalf("duplicate or empty chain id at %d", i)
		}
		seen[id] = true
	}
}
