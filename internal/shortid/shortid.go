// Package shortid generates short opaque hex identifiers shared by
// sessions, schedules, and uploaded image filenames.
package shortid

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns 4 cryptographically random bytes rendered as 8 lowercase
// hex characters.
func New() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic("shortid: system randomness unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
