//go:build e2e

package migrate

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAgainstRealDatabase(t *testing.T) {
	dsn := os.Getenv("KEELD_TEST_DSN")
	if dsn == "" {
		t.Skip("KEELD_TEST_DSN not set")
	}
	require.NoError(t, Run(context.Background(), dsn))

	version, dirty, err := Version(dsn)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}
