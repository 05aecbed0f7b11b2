// Package auth holds the credential primitives the issuer vends: join
// tokens for the media router and time-limited TURN relay credentials.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// RelayTTL is how long vended TURN credentials stay valid.
const RelayTTL = 3600 * time.Second

// RelayCredentials are TURN REST-style ephemeral credentials. The
// username carries its own expiry; relays verify the HMAC and reject
// once the timestamp passes.
type RelayCredentials struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
	TTL        int64  `json:"ttl"`
}

// TURNCredentials computes credentials for a label valid RelayTTL from
// now: username = (unix+ttl):label, credential =
// base64(HMAC-SHA1(secret, username)).
func TURNCredentials(secret, label string, now time.Time) RelayCredentials {
	username := fmt.Sprintf("%d:%s", now.Unix()+int64(RelayTTL.Seconds()), label)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return RelayCredentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		TTL:        int64(RelayTTL.Seconds()),
	}
}
