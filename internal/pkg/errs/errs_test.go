package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelpersMatchWrappedSentinels(t *testing.T) {
	require.True(t, IsValidation(fmt.Errorf("%w: k must be positive", ErrValidation)))
	require.True(t, IsUnavailable(fmt.Errorf("%w: no backend configured", ErrUnavailable)))
	require.True(t, IsNotReady(fmt.Errorf("%w: needs more vectors", ErrNotReady)))

	require.False(t, IsValidation(ErrUnavailable))
	require.False(t, IsUnavailable(nil))
	require.False(t, IsNotReady(ErrPersistence))
}
