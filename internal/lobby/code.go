package lobby

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	codeLength = 6
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// GenerateCode draws a random lobby code. With 32^6 (about 10^9) codes a
// collision is unlikely but possible, so callers must still check the code
// is free before using it.
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate lobby code: %w", err)
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code), nil
}

// NormalizeCode upper-cases and trims a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the shape of a lobby code. Older codes
// may use the full alphanumeric range, so only length and charset are checked.
func ValidCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
