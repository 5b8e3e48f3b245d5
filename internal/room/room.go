// Package room generates room identifiers and reads them from invite links.
//
// Invite links carry the room in the fragment (base#room=<id>) so the id is
// never sent to the web server hosting the page; FromURL also accepts the
// ?room=<id> query form.
package room

import (
	"crypto/rand"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of NewCode identifiers.
const CodeLength = 6

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewID returns a fresh uuid room id.
func NewID() string {
	return uuid.NewString()
}

// NewCode returns a short uppercase room code, used when a uuid cannot be
// obtained from the rooms API.
func NewCode() string {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// Valid reports whether id is usable as a room id.
func Valid(id string) bool {
	return validID.MatchString(id)
}

// InviteURL returns base with its query and fragment replaced by #room=id.
func InviteURL(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String() + "#room=" + url.QueryEscape(id), nil
}

// FromURL extracts the room id from an invite link. The query wins over the
// fragment. ok is false when neither carries a room.
func FromURL(raw string) (id string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if id := u.Query().Get("room"); id != "" {
		return id, true
	}
	frag, err := url.ParseQuery(strings.TrimPrefix(u.Fragment, "#"))
	if err != nil {
		return "", false
	}
	if id := frag.Get("room"); id != "" {
		return id, true
	}
	return "", false
}
