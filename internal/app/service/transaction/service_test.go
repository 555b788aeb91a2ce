package transaction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	models "github.com/fernlabs/tally/internal/models"
	types "github.com/fernlabs/tally/pkg/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:txndb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Transaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestRecorder(t *testing.T) Recorder {
	t.Helper()
	return NewService(setupTestDB(t), zap.NewNop().Sugar())
}

func TestRecord_SetsRecordedStatusAndNoInvoice(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t)

	txn, err := rec.Record(ctx, &RecordRequest{
		AccountID:         "acc_1",
		ExternalPaymentID: "pay_1",
		ProductID:         "prod_1",
		ProductName:       "Starter plan",
		SaleAmount:        100,
		FeeAmount:         10,
		Currency:          "usd",
	})
	require.NoError(t, err)
	require.Equal(t, types.TransactionStatusRecorded, txn.Status)
	require.Nil(t, txn.InvoiceID)
	require.Equal(t, int64(90), txn.Net())
}

func TestRecord_AmountValidation(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t)

	cases := []struct {
		name string
		sale int64
		fee  int64
	}{
		{name: "negative sale", sale: -1, fee: 0},
		{name: "negative fee", sale: 10, fee: -1},
		{name: "fee exceeds sale", sale: 10, fee: 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rec.Record(ctx, &RecordRequest{
				AccountID:         "acc_1",
				ExternalPaymentID: "pay_" + tc.name,
				SaleAmount:        tc.sale,
				FeeAmount:         tc.fee,
				Currency:          "usd",
			})
			require.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestListRecent_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	rec := NewService(db, zap.NewNop().Sugar())

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		txn, err := rec.Record(ctx, &RecordRequest{
			AccountID:         "acc_1",
			ExternalPaymentID: fmt.Sprintf("pay_%d", i),
			SaleAmount:        int64(i + 1),
			Currency:          "usd",
		})
		require.NoError(t, err)
		// spread creation times so ordering is deterministic
		require.NoError(t, db.Model(&models.Transaction{}).
			Where("id = ?", txn.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	items, err := rec.ListRecent(ctx, "acc_1", 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, int64(5), items[0].SaleAmount)
	require.Equal(t, int64(4), items[1].SaleAmount)
	require.Equal(t, int64(3), items[2].SaleAmount)

	all, err := rec.ListRecent(ctx, "acc_1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestScan_FiltersByAccount(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t)

	for i, acc := range []string{"acc_1", "acc_1", "acc_2"} {
		_, err := rec.Record(ctx, &RecordRequest{
			AccountID:         acc,
			ExternalPaymentID: fmt.Sprintf("pay_%d", i),
			SaleAmount:        100,
			Currency:          "usd",
		})
		require.NoError(t, err)
	}

	res, err := rec.Scan(ctx, &ScanRequest{
		Filters: []*types.CommonFilter{{Field: "account_id", Operator: types.CommonFilterOperatorEq, Values: []any{"acc_1"}}},
		Size:    10,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	require.Len(t, res.Items, 2)
}
