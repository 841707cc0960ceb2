package ledger

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/storetest"
	"github.com/stretchr/testify/require"
)

func TestRedisLedger(t *testing.T) {
	l := NewRedisLedger(storetest.Redis(t))
	require.NoError(t, l.Reset(context.Background()))
	exercise(t, l)
}

func TestPostgresLedger(t *testing.T) {
	l := NewPostgresLedger(storetest.Postgres(t, Schema))
	require.NoError(t, l.Reset(context.Background()))
	exercise(t, l)
}
