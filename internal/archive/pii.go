package archive

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// HashCustomerKey returns the hex SHA-256 of a customer number, normalized
// so "+5491155550000" and "5491155550000" hash the same.
func HashCustomerKey(key string) string {
	h := sha256.Sum256([]byte(strings.TrimPrefix(strings.TrimSpace(key), "+")))
	return fmt.Sprintf("%x", h)
}
