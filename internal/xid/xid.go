package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier tagged with prefix, e.g. "cus_3f0c...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// SaleID returns a canonical UUID for a sale so clients can learn the id
// before the transaction commits.
func SaleID() string {
	return uuid.NewString()
}

// NormalizeSaleID returns the canonical lower-case form of a client supplied
// sale id. ok is false when id is not a UUID.
func NormalizeSaleID(id string) (normalized string, ok bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
