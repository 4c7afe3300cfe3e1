package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultAvatarSize is the edge length in pixels requested from Gravatar.
const DefaultAvatarSize = 200

// GetGravatarURL returns the Gravatar image for an email address. Unknown
// addresses fall back to the "mystery person" silhouette.
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = DefaultAvatarSize
	}
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=mp", hex.EncodeToString(sum[:]), size)
}
