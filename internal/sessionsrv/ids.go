package sessionsrv

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// newClientID mints a fresh client_id on TCP accept (spec §3).
func newClientID() string {
	return uuid.NewString()
}

// newRoomID mints a fresh room_id on room_create (spec §4.3.2).
func newRoomID() string {
	return "room_" + uuid.NewString()
}

// newSessionToken mints an opaque, >=128-bit random session token (spec §3:
// "session_token (opaque random >= 128 bits)"). 32 bytes of crypto/rand
// entropy, base64url-encoded.
func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read failing means the OS entropy source is broken;
		// there is no safe fallback for a security-relevant token.
		panic("sessionsrv: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
