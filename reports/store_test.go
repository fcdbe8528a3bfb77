package reports

import (
	"context"
	"testing"
	"time"

	"cinema_booking/database"
	"cinema_booking/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewRepositoryStore(database.NewMemoryRepository())

	now := time.Now()
	require.NoError(t, store.Record(ctx, &model.FinancialReport{Kind: model.ReportPayment, BookingID: 7, Amount: 4000, OccurredAt: now}))
	require.NoError(t, store.Record(ctx, &model.FinancialReport{Kind: model.ReportRefund, BookingID: 7, Amount: 1000, OccurredAt: now.Add(time.Minute)}))
	require.NoError(t, store.Record(ctx, &model.FinancialReport{Kind: model.ReportPayment, BookingID: 8, Amount: 500, OccurredAt: now}))

	rows, err := store.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.ReportPayment, rows[0].Kind)
	assert.Equal(t, int64(1000), rows[1].Amount)
}
