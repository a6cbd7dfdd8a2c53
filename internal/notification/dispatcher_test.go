package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/audit"
	"github.com/garyjia/expense-gate/internal/metrics"
	"github.com/garyjia/expense-gate/internal/models"
)

// MockChannel fails a configurable number of times before succeeding.
type MockChannel struct {
	mu        sync.Mutex
	failures  int
	failWith  error
	delivered []*models.NotificationEvent
	attempts  int
}

func (m *MockChannel) Send(ctx context.Context, event *models.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failures > 0 {
		m.failures--
		return m.failWith
	}
	copied := *event
	m.delivered = append(m.delivered, &copied)
	return nil
}

func (m *MockChannel) Name() string { return "mock" }

func (m *MockChannel) deliveredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

// MockNotificationStore records Create/UpdateStatus calls.
type MockNotificationStore struct {
	mu      sync.Mutex
	nextID  int64
	created []*models.NotificationEvent
	updates []string
}

func (m *MockNotificationStore) Create(ctx context.Context, event *models.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event.ID = m.nextID
	copied := *event
	m.created = append(m.created, &copied)
	return nil
}

func (m *MockNotificationStore) UpdateStatus(ctx context.Context, id int64, status string, attempt int, lastError string, deliveredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, status)
	return nil
}

func (m *MockNotificationStore) lastUpdate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return ""
	}
	return m.updates[len(m.updates)-1]
}

// MockAuditStore collects appended audit events.
type MockAuditStore struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (m *MockAuditStore) Append(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockAuditStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	return types
}

func decidedSubmission(status string) *models.ExpenseSubmission {
	return &models.ExpenseSubmission{
		TransactionID:  "TXN-1",
		EmployeeID:     "EMP-1",
		Category:       "Meals",
		Currency:       "USD",
		Amount:         84.50,
		Status:         status,
		DecisionReason: "within policy, no anomalies",
	}
}

func newDispatcherFixture(t *testing.T, channel *MockChannel, admins []string) (*Dispatcher, *MockNotificationStore, *MockAuditStore) {
	t.Helper()
	store := &MockNotificationStore{}
	auditLog := &MockAuditStore{}
	recorder := audit.NewRecorder(auditLog, zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(channel, store, recorder, m, Config{
		Retry: &RetryStrategy{
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		},
		SendTimeout:     time.Second,
		AdminRecipients: admins,
	}, zap.NewNop())
	return d, store, auditLog
}

func TestDispatchTerminalDecisionNotifiesEmployee(t *testing.T) {
	channel := &MockChannel{}
	d, store, auditLog := newDispatcherFixture(t, channel, nil)

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusApproved))

	require.Equal(t, 1, channel.deliveredCount())
	sent := channel.delivered[0]
	assert.Equal(t, models.RoleEmployee, sent.RecipientRole)
	assert.Equal(t, "EMP-1", sent.RecipientID)
	assert.Contains(t, sent.Message, "TXN-1")
	assert.Contains(t, sent.Message, models.StatusApproved)

	require.Len(t, store.created, 1)
	assert.Equal(t, "exec-1", store.created[0].ExecutionID, "delivery row joins the run that decided")
	assert.Equal(t, models.NotificationStatusSent, store.lastUpdate())
	assert.Contains(t, auditLog.eventTypes(), models.EventNotificationSent)
	for _, event := range auditLog.events {
		assert.Equal(t, "exec-1", event.ExecutionID)
	}
}

func TestDispatchFlaggedNotifiesEveryAdmin(t *testing.T) {
	channel := &MockChannel{}
	d, store, _ := newDispatcherFixture(t, channel, []string{"admin-1", "admin-2"})

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusFlagged))

	require.Equal(t, 2, channel.deliveredCount())
	for _, sent := range channel.delivered {
		assert.Equal(t, models.RoleAdmin, sent.RecipientRole)
		assert.Contains(t, sent.Message, "Review required")
	}
	assert.Len(t, store.created, 2)
}

func TestDispatchFlaggedWithoutAdminsIsNoop(t *testing.T) {
	channel := &MockChannel{}
	d, store, _ := newDispatcherFixture(t, channel, nil)

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusFlagged))
	assert.Equal(t, 0, channel.deliveredCount())
	assert.Empty(t, store.created)
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	channel := &MockChannel{failures: 2, failWith: errors.New("connection refused")}
	d, store, auditLog := newDispatcherFixture(t, channel, nil)

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusApproved))

	assert.Equal(t, 3, channel.attempts, "two transient failures then success")
	assert.Equal(t, 1, channel.deliveredCount())
	assert.Equal(t, models.NotificationStatusSent, store.lastUpdate())
	assert.Contains(t, auditLog.eventTypes(), models.EventNotificationSent)
}

func TestDispatchExhaustedRetriesRecordFailure(t *testing.T) {
	channel := &MockChannel{failures: 10, failWith: errors.New("connection timeout")}
	d, store, auditLog := newDispatcherFixture(t, channel, nil)

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusDenied))

	assert.Equal(t, 3, channel.attempts, "retry budget is bounded")
	assert.Equal(t, 0, channel.deliveredCount())
	assert.Equal(t, models.NotificationStatusFailed, store.lastUpdate())
	assert.Contains(t, auditLog.eventTypes(), models.EventNotificationFailed)
	for _, event := range auditLog.events {
		assert.Equal(t, "exec-1", event.ExecutionID, "failure trail keeps the execution id")
	}
}

func TestDispatchPermanentFailureDoesNotRetry(t *testing.T) {
	channel := &MockChannel{failures: 10, failWith: errors.New("invalid recipient")}
	d, store, _ := newDispatcherFixture(t, channel, nil)

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusApproved))

	assert.Equal(t, 1, channel.attempts, "permanent failures are not retried")
	assert.Equal(t, models.NotificationStatusFailed, store.lastUpdate())
}

func TestDispatchPendingStatusProducesNothing(t *testing.T) {
	channel := &MockChannel{}
	d, _, _ := newDispatcherFixture(t, channel, []string{"admin-1"})

	d.DispatchDecisionSync(context.Background(), "exec-1", decidedSubmission(models.StatusPending))
	assert.Equal(t, 0, channel.deliveredCount())
}
