// Package privacy pseudonymizes customer identifiers before they reach
// report output and scrubs secrets from text that is logged or displayed.
package privacy

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"

	"flakereport/pkg/errors"
)

// HashLength is the number of hex characters kept from each digest
const HashLength = 32

var (
	emailRegex    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex    = regexp.MustCompile(`(?i)(token|secret|password|pwd|api[_-]?key)([\s:=]+)[^\s&;]+`)
	dsnCredsRegex = regexp.MustCompile(`^([^:/@\s]+):([^@\s]+)@`)
)

// Hasher maps identifiers to stable salted pseudonyms
type Hasher struct {
	salt []byte
}

// NewHasher creates a hasher for the given salt
func NewHasher(salt string) (*Hasher, error) {
	if salt == "" {
		return nil, errors.ConfigError("privacy.salt is required to pseudonymize identifiers", "privacy.salt")
	}
	if len(salt) > blake2b.Size {
		sum := blake2b.Sum256([]byte(salt))
		return &Hasher{salt: sum[:]}, nil
	}
	return &Hasher{salt: []byte(salt)}, nil
}

// HashIdentifier returns the keyed BLAKE2b-256 digest of id, hex encoded and
// truncated. Empty identifiers stay empty so missing keys remain missing.
func (h *Hasher) HashIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	mac, err := blake2b.New256(h.salt)
	if err != nil {
		// key length is bounded in NewHasher
		panic(err)
	}
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))[:HashLength]
}

// HashDims replaces the named dimension values in place
func (h *Hasher) HashDims(dims map[string]string, names ...string) {
	for _, name := range names {
		if v, ok := dims[name]; ok {
			dims[name] = h.HashIdentifier(v)
		}
	}
}

// SanitizeString redacts emails and credential assignments
func SanitizeString(input string) string {
	sanitized := emailRegex.ReplaceAllString(input, "[REDACTED]")
	return tokenRegex.ReplaceAllString(sanitized, "${1}${2}[REDACTED]")
}

// RedactDSN hides the password part of a user:password@host DSN
func RedactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.Contains(dsn, "://") {
		scheme, rest, _ := strings.Cut(dsn, "://")
		return scheme + "://" + RedactDSN(rest)
	}
	return SanitizeString(dsnCredsRegex.ReplaceAllString(dsn, "${1}:****@"))
}
