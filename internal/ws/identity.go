package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"plaza/server/internal/presence"
)

// ErrNoIdentity signals that a request carried no resolvable identity.
var ErrNoIdentity = errors.New("no identity on request")

// IdentityResolver maps an upgraded request to a stable userID. The concrete
// authentication layer lives outside this subsystem; the default resolver
// trusts a bearer token carried on the request.
type IdentityResolver interface {
	Resolve(r *http.Request) (string, error)
}

// ProfileStore supplies the display attributes fetched once at connect time.
type ProfileStore interface {
	Lookup(userID string) (presence.Profile, error)
}

// TokenResolver reads the identity from the token query parameter or the
// X-Plaza-Token header.
type TokenResolver struct{}

func (TokenResolver) Resolve(r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	if token := r.Header.Get("X-Plaza-Token"); token != "" {
		return token, nil
	}
	return "", ErrNoIdentity
}

// pseudoIdentity derives a fallback id from the remote address so an
// unidentifiable connection is still visible to others. Cross-session
// continuity is lost for such users.
func pseudoIdentity(r *http.Request) string {
	addr := r.RemoteAddr
	addr = strings.ReplaceAll(addr, ":", "-")
	return "guest-" + addr
}

// StaticProfiles is the default profile source: display name mirrors the id
// and the color is derived from a stable hash. Deployments replace this with
// a lookup against the real user-profile store.
type StaticProfiles struct{}

func (StaticProfiles) Lookup(userID string) (presence.Profile, error) {
	var hash uint32
	for _, c := range userID {
		hash = hash*16777619 ^ uint32(c)
	}
	palette := [...]string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6", "#008080"}
	return presence.Profile{
		Name:   userID,
		Avatar: fmt.Sprintf("avatar-%d", hash%8),
		Color:  palette[hash%uint32(len(palette))],
	}, nil
}
