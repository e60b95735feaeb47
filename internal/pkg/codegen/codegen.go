package codegen

import (
	"crypto/rand"
	"math/big"
)

// Alphabet leaves out 0/O/1/I to keep codes unambiguous when read aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 8

// NewCode mints a redemption code from a cryptographically strong source.
func NewCode() (string, error) {
	return randomString(CodeLength)
}

// NewRefCode mints a user referral code; same alphabet, shorter handle.
func NewRefCode() (string, error) {
	return randomString(6)
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = Alphabet[idx.Int64()]
	}
	return string(buf), nil
}
