package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("PAYOUTS_WORKER_ID", "publisher-3")
	require.Equal(t, "publisher-3", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("PAYOUTS_WORKER_ID", "")
	require.NotEmpty(t, GetID())
}
