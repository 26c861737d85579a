package rand

import (
	"strings"

	"github.com/google/uuid"
)

// ID16 returns the first 16 hex characters of a random UUID.
func ID16() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
