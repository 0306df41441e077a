package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet omits 0/O and 1/I/L so codes survive being read aloud or retyped
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewCode returns prefix followed by n random characters from codeAlphabet
func NewCode(prefix string, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return prefix + string(b), nil
}

// NewReferralCode returns a code for a user to share
func NewReferralCode() (string, error) {
	return NewCode("", 8)
}

func newVoucherCode() (string, error) {
	return NewCode("SJV-", 10)
}

func newRedemptionCode() (string, error) {
	return NewCode("SJR-", 10)
}
