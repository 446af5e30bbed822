package ws

import (
	"net/http/httptest"
	"testing"
)

func TestTokenResolverPrefersQueryParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=alice", nil)
	r.Header.Set("X-Plaza-Token", "bob")

	resolver := TokenResolver{}
	id, err := resolver.Resolve(r)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if id != "alice" {
		t.Fatalf("expected query token to win, got %q", id)
	}
}

func TestTokenResolverFallsBackToHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("X-Plaza-Token", "bob")

	id, err := TokenResolver{}.Resolve(r)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if id != "bob" {
		t.Fatalf("expected header token, got %q", id)
	}
}

func TestTokenResolverReportsMissingIdentity(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	if _, err := (TokenResolver{}).Resolve(r); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestPseudoIdentityIsStablePerAddress(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "10.0.0.7:51234"

	first := pseudoIdentity(r)
	second := pseudoIdentity(r)
	if first != second {
		t.Fatalf("expected stable pseudo identity, got %q then %q", first, second)
	}
	if first != "guest-10.0.0.7-51234" {
		t.Fatalf("unexpected pseudo identity %q", first)
	}
}

func TestStaticProfilesAreDeterministic(t *testing.T) {
	store := StaticProfiles{}

	a, err := store.Lookup("alice")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	b, _ := store.Lookup("alice")
	if a != b {
		t.Fatalf("expected deterministic profile, got %+v and %+v", a, b)
	}
	if a.Name != "alice" || a.Color == "" || a.Avatar == "" {
		t.Fatalf("expected populated profile, got %+v", a)
	}
}
