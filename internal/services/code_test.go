package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoteFailureThreshold(t *testing.T) {
	service := &ServiceCode{failures: map[int64]int{}}

	for i := 1; i < BRUTE_FORCE_THRESHOLD; i++ {
		count := service.noteFailure(42)
		require.Equal(t, i, count)
		require.Less(t, count, BRUTE_FORCE_THRESHOLD)
	}

	require.Equal(t, BRUTE_FORCE_THRESHOLD, service.noteFailure(42))

	// other users keep their own tally
	require.Equal(t, 1, service.noteFailure(7))
}
