package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCodeFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, c := range code {
			require.True(t, strings.ContainsRune(Alphabet, c), "unexpected rune %q", c)
		}
		seen[code] = true
	}
	// 100 draws from a 32^8 space should never collide
	require.Len(t, seen, 100)
}

func TestAlphabetUnambiguous(t *testing.T) {
	for _, c := range "0O1I" {
		require.False(t, strings.ContainsRune(Alphabet, c))
	}
}
