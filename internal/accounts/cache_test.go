package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newCachedLedger(t *testing.T) (*Service, *memoryLedgerRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newMemoryLedgerRepo()
	return NewService(repo, nil, NewCache(client, time.Minute)), repo
}

func TestAgingSummaryCached(t *testing.T) {
	svc, repo := newCachedLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	asOf := time.Now().UTC()
	first, err := svc.AgingSummary(ctx, testBusinessID, account.ID, asOf)
	require.NoError(t, err)
	require.True(t, first.Current.Equal(decimal.NewFromInt(100)))
	loads := repo.openListCalls

	second, err := svc.AgingSummary(ctx, testBusinessID, account.ID, asOf)
	require.NoError(t, err)
	require.True(t, second.Total().Equal(first.Total()))
	require.Equal(t, loads, repo.openListCalls, "second read served from cache")
}

func TestAgingSummaryInvalidatedByLedgerMutation(t *testing.T) {
	svc, repo := newCachedLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	asOf := time.Now().UTC()
	first, err := svc.AgingSummary(ctx, testBusinessID, account.ID, asOf)
	require.NoError(t, err)
	require.True(t, first.Total().Equal(decimal.NewFromInt(100)))

	// A payment bumps the cache version, so the next read reloads.
	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{Amount: decimal.NewFromInt(40), Method: "CASH"})
	require.NoError(t, err)
	loads := repo.openListCalls

	after, err := svc.AgingSummary(ctx, testBusinessID, account.ID, asOf)
	require.NoError(t, err)
	require.True(t, after.Total().Equal(decimal.NewFromInt(60)))
	require.Equal(t, loads+1, repo.openListCalls)
}

func TestAgingBucketsSumToOutstanding(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	due := func(id int64, daysOverdue int) OpenCharge {
		c := openCharge(id, 100, 0, asOf.AddDate(0, 0, -daysOverdue-30))
		d := asOf.AddDate(0, 0, -daysOverdue)
		c.Transaction.DueAt = &d
		return c
	}
	charges := []OpenCharge{due(1, -5), due(2, 10), due(3, 45), due(4, 75), due(5, 120)}

	summary := bucketCharges(1, asOf, charges)
	require.True(t, summary.Current.Equal(decimal.NewFromInt(100)))
	require.True(t, summary.Days30.Equal(decimal.NewFromInt(100)))
	require.True(t, summary.Days60.Equal(decimal.NewFromInt(100)))
	require.True(t, summary.Days90Plus.Equal(decimal.NewFromInt(200)))
	require.True(t, summary.Total().Equal(decimal.NewFromInt(500)))
}
