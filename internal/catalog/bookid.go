package catalog

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 5
)

// IDGenerator produces candidate book codes.
type IDGenerator func() (string, error)

// NewBookID draws idLength characters uniformly from idAlphabet.
func NewBookID() (string, error) {
	max := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, idLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate book id: %w", err)
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeID canonicalizes a code typed by a user.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
