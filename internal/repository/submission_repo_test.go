package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/models"
	"github.com/garyjia/expense-gate/internal/pipeline"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func storedSubmission(transactionID string) *models.ExpenseSubmission {
	now := time.Now().UTC()
	return &models.ExpenseSubmission{
		TransactionID:     transactionID,
		EmployeeID:        "EMP-1",
		DateIncurred:      "2026-08-10",
		DateSubmitted:     "2026-08-12",
		Description:       "Team lunch",
		Vendor:            "Bistro Nova",
		PaymentMethod:     "corporate card",
		Currency:          "USD",
		Amount:            84.50,
		AmountUSD:         84.50,
		Category:          "Meals",
		ReceiptAttached:   true,
		ReimbursementType: "standard",
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestSubmissionCreateAndGet(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, storedSubmission("TXN-1")))

	got, err := repo.GetByTransactionID(ctx, "TXN-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "EMP-1", got.EmployeeID)
	assert.Equal(t, 84.50, got.Amount)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.ReceiptAttached)
	assert.Nil(t, got.DecidedAt)
}

func TestSubmissionGetMissingReturnsNil(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())

	got, err := repo.GetByTransactionID(context.Background(), "TXN-404")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubmissionDuplicateCreate(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, storedSubmission("TXN-1")))

	dup := storedSubmission("TXN-1")
	dup.Amount = 9999
	err := repo.Create(ctx, dup)
	require.ErrorIs(t, err, pipeline.ErrDuplicateTransaction)

	got, err := repo.GetByTransactionID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, 84.50, got.Amount, "original row must be untouched")
}

func TestSubmissionUpdateDecision(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, storedSubmission("TXN-1")))

	decidedAt := time.Now().UTC()
	require.NoError(t, repo.UpdateDecision(ctx, "TXN-1", models.StatusApproved, "within policy, no anomalies", models.ActorSystem, &decidedAt))

	got, err := repo.GetByTransactionID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "within policy, no anomalies", got.DecisionReason)
	assert.Equal(t, models.ActorSystem, got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
}

func TestSubmissionUpdateDecisionFlaggedLeavesDecisionFieldsNull(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, storedSubmission("TXN-1")))
	require.NoError(t, repo.UpdateDecision(ctx, "TXN-1", models.StatusFlagged, "needs review", "", nil))

	got, err := repo.GetByTransactionID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, got.Status)
	assert.Empty(t, got.DecidedBy, "no decision has been made yet")
	assert.Nil(t, got.DecidedAt)
}

func TestSubmissionUpdateDecisionMissingRow(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	err := repo.UpdateDecision(context.Background(), "TXN-404", models.StatusApproved, "x", models.ActorSystem, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveFlaggedGuard(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	sub := storedSubmission("TXN-1")
	sub.Status = models.StatusFlagged
	require.NoError(t, repo.Create(ctx, sub))

	won, err := repo.ResolveFlagged(ctx, "TXN-1", models.StatusApproved, "looks fine", "admin-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, won)

	// Second resolution loses: the row is no longer flagged
	won, err = repo.ResolveFlagged(ctx, "TXN-1", models.StatusDenied, "no", "admin-2", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, won)

	got, err := repo.GetByTransactionID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "admin-1", got.DecidedBy)
}

func TestResolveFlaggedConcurrent(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	sub := storedSubmission("TXN-1")
	sub.Status = models.StatusFlagged
	require.NoError(t, repo.Create(ctx, sub))

	const resolvers = 8
	wins := make([]bool, resolvers)
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := repo.ResolveFlagged(ctx, "TXN-1", models.StatusApproved, "ok", "admin", time.Now().UTC())
			if err == nil {
				wins[i] = won
			}
		}(i)
	}
	wg.Wait()

	var winners int
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one resolver observes the transition")
}

func TestRecentByEmployeeCategoryBoundedAndOrdered(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sub := storedSubmission("TXN-" + string(rune('A'+i)))
		sub.Amount = float64(10 * (i + 1))
		sub.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		sub.UpdatedAt = sub.CreatedAt
		require.NoError(t, repo.Create(ctx, sub))
	}

	// A different category must not appear in the window
	other := storedSubmission("TXN-OTHER")
	other.Category = "Travel"
	require.NoError(t, repo.Create(ctx, other))

	window, err := repo.RecentByEmployeeCategory(ctx, "EMP-1", "Meals", "TXN-NEW", 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, 50.0, window[0].Amount, "most recent first")
	assert.Equal(t, 40.0, window[1].Amount)
	assert.Equal(t, 30.0, window[2].Amount)
}

func TestRecentByEmployeeCategoryExcludesScoredSubmission(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"TXN-A", "TXN-B", "TXN-C"} {
		sub := storedSubmission(id)
		sub.Amount = 10
		sub.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		sub.UpdatedAt = sub.CreatedAt
		require.NoError(t, repo.Create(ctx, sub))
	}

	// The submission under review is persisted before scoring; its own row
	// must not dilute the trailing mean.
	current := storedSubmission("TXN-SELF")
	current.Amount = 90
	current.CreatedAt = base.Add(24 * time.Hour)
	current.UpdatedAt = current.CreatedAt
	require.NoError(t, repo.Create(ctx, current))

	window, err := repo.RecentByEmployeeCategory(ctx, "EMP-1", "Meals", "TXN-SELF", 20)
	require.NoError(t, err)
	require.Len(t, window, 3)
	for _, sub := range window {
		assert.NotEqual(t, "TXN-SELF", sub.TransactionID)
		assert.Equal(t, 10.0, sub.Amount)
	}
}

func TestListByEmployee(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, storedSubmission("TXN-1")))

	second := storedSubmission("TXN-2")
	second.EmployeeID = "EMP-2"
	require.NoError(t, repo.Create(ctx, second))

	subs, err := repo.ListByEmployee(ctx, "EMP-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "TXN-1", subs[0].TransactionID)
}
