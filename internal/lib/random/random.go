// Package random produces identifiers and user codes from crypto/rand.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// IdentifierBytes gives 160 bits of entropy per identifier
const IdentifierBytes = 20

// userCodeAlphabet excludes vowels and look-alike characters (RFC 8628 section 6.1)
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

const userCodeLength = 8

// Identifier returns a hex encoded random identifier
func Identifier() (string, error) {
	const op = "random.Identifier"
	b := make([]byte, IdentifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(b), nil
}

// UserCode returns a human friendly code formatted as XXXX-XXXX
func UserCode() (string, error) {
	const op = "random.UserCode"
	var sb strings.Builder
	max := big.NewInt(int64(len(userCodeAlphabet)))
	for i := 0; i < userCodeLength; i++ {
		if i == userCodeLength/2 {
			sb.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		sb.WriteByte(userCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeUserCode uppercases input and restores the dash a user may have skipped
func NormalizeUserCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	if len(code) != userCodeLength {
		return code
	}
	return code[:userCodeLength/2] + "-" + code[userCodeLength/2:]
}
