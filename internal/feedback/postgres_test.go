package feedback

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPostgresStore needs a disposable database; the table it creates is
// truncated first.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("INBETWEEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INBETWEEN_TEST_POSTGRES_DSN not set, skipping test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.pool.Exec(ctx, "TRUNCATE inbetween_feedback")
	require.NoError(t, err)

	exerciseStore(t, s)
}
