package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pibot/trader"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, trader.JournalEntry{
		Pair: "PI/USDT", Side: "buy", Price: 100, Amount: 8.5, Quote: 850, OrderID: "o-1", At: base,
	}))
	require.NoError(t, j.Record(ctx, trader.JournalEntry{
		Pair: "PI/USDT", Side: "sell", Manual: true, Reason: "manual", Price: 103, Amount: 8.5, Quote: 875.5,
		EntryPrice: 100, PnL: 25.5, PnLPct: 0.03, OrderID: "o-2", At: base.Add(time.Minute),
	}))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "sell", entries[0].Side)
	assert.True(t, entries[0].Manual)
	assert.Equal(t, "manual", entries[0].Reason)
	assert.Equal(t, 25.5, entries[0].PnL)
	assert.Equal(t, base.Add(time.Minute), entries[0].At)
	assert.NotEmpty(t, entries[0].ID)

	assert.Equal(t, "buy", entries[1].Side)
	assert.Equal(t, "o-1", entries[1].OrderID)

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournalSummarize(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	empty, err := j.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, empty)

	for _, pnl := range []float64{10, -4, 2.5} {
		require.NoError(t, j.Record(ctx, trader.JournalEntry{Pair: "PI/USDT", Side: "sell", Price: 1, Amount: 1, PnL: pnl}))
	}
	require.NoError(t, j.Record(ctx, trader.JournalEntry{Pair: "PI/USDT", Side: "buy", Price: 1, Amount: 1}))

	s, err := j.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 8.5, s.TotalPnL, 1e-9)
}

func TestJournalReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), trader.JournalEntry{ID: "fixed", Pair: "PI/USDT", Side: "buy", Price: 1, Amount: 1}))
	require.NoError(t, j.Close())

	j, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fixed", entries[0].ID)
}
