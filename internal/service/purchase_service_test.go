package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/jobs"
)

type mockSeatLedger struct {
	reserved   []string
	released   []string
	reserveErr error
	releaseErr error
}

func (m *mockSeatLedger) ReserveSeat(ctx context.Context, classID string) error {
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.reserved = append(m.reserved, classID)
	return nil
}

func (m *mockSeatLedger) ReleaseSeat(ctx context.Context, classID string) error {
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.released = append(m.released, classID)
	return nil
}

type mockEnrollmentStore struct {
	byRef     map[string]models.Enrollment
	created   *models.Enrollment
	createErr error
}

func (m *mockEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.byRef == nil {
		m.byRef = make(map[string]models.Enrollment)
	}
	if _, exists := m.byRef[enrollment.PaymentRef]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "payment reference already recorded")
	}
	enrollment.CreatedAt = time.Now().UTC()
	m.byRef[enrollment.PaymentRef] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentStore) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Enrollment, error) {
	if e, ok := m.byRef[paymentRef]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	for _, e := range m.byRef {
		if e.ID == id {
			return &models.EnrollmentDetail{Enrollment: e, ClassName: "Jazz Piano Basics"}, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockSelectionStore struct {
	selections map[string]models.Selection
	deleted    []string
	deleteErr  error
	findErr    error
}

func (m *mockSelectionStore) FindByID(ctx context.Context, id string) (*models.Selection, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if s, ok := m.selections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSelectionStore) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func ownedSelections() map[string]models.Selection {
	return map[string]models.Selection{
		"sel-1": {ID: "sel-1", StudentEmail: "sam@example.com", ClassID: "class-1"},
	}
}

type mockCleanupQueue struct {
	jobs []jobs.Job
}

func (m *mockCleanupQueue) Enqueue(job jobs.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

type mockPurchaseMetrics struct {
	results []string
}

func (m *mockPurchaseMetrics) ObservePurchase(result string) {
	m.results = append(m.results, result)
}

func validPurchase() PurchaseRequest {
	return PurchaseRequest{
		SelectionID: "sel-1",
		ClassID:     "class-1",
		PaymentRef:  "pay_abc",
		Amount:      49.99,
	}
}

func TestCompletePurchaseHappyPath(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{selections: ownedSelections()}
	metrics := &mockPurchaseMetrics{}
	svc := NewPurchaseService(ledger, store, selections, nil, metrics, nil, nil)

	detail, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "sam@example.com", detail.StudentEmail)
	assert.Equal(t, []string{"class-1"}, ledger.reserved)
	assert.Empty(t, ledger.released)
	assert.Equal(t, []string{"sel-1"}, selections.deleted)
	assert.Equal(t, []string{"success"}, metrics.results)
}

func TestCompletePurchaseSoldOut(t *testing.T) {
	ledger := &mockSeatLedger{reserveErr: appErrors.ErrSoldOut}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{}
	metrics := &mockPurchaseMetrics{}
	svc := NewPurchaseService(ledger, store, selections, nil, metrics, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrSoldOut.Code, appErr.Code)
	assert.Nil(t, store.created)
	assert.Empty(t, selections.deleted)
	assert.Equal(t, []string{"sold_out"}, metrics.results)
}

func TestCompletePurchaseEnrollmentFailureReleasesSeat(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{createErr: errors.New("connection reset")}
	selections := &mockSelectionStore{}
	metrics := &mockPurchaseMetrics{}
	svc := NewPurchaseService(ledger, store, selections, nil, metrics, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErr.Code)
	// The reserved seat must be handed back when no record was written.
	assert.Equal(t, []string{"class-1"}, ledger.reserved)
	assert.Equal(t, []string{"class-1"}, ledger.released)
	assert.Empty(t, selections.deleted)
}

func TestCompletePurchaseCleanupFailureStillSucceeds(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{deleteErr: errors.New("timeout")}
	queue := &mockCleanupQueue{}
	metrics := &mockPurchaseMetrics{}
	svc := NewPurchaseService(ledger, store, selections, queue, metrics, nil, nil)

	detail, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Empty(t, ledger.released)
	assert.Equal(t, []string{"success"}, metrics.results)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeSelectionCleanup, queue.jobs[0].Type)
	payload, ok := queue.jobs[0].Payload.(SelectionCleanupPayload)
	require.True(t, ok)
	assert.Equal(t, "sel-1", payload.SelectionID)
}

func TestCompletePurchaseSelectionAlreadyCleared(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{deleteErr: sql.ErrNoRows}
	queue := &mockCleanupQueue{}
	svc := NewPurchaseService(ledger, store, selections, queue, nil, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	require.NoError(t, err)
	assert.Empty(t, queue.jobs)
}

func TestCompletePurchaseRejectsForeignSelection(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{selections: ownedSelections()}
	metrics := &mockPurchaseMetrics{}
	svc := NewPurchaseService(ledger, store, selections, nil, metrics, nil, nil)

	// sel-1 belongs to sam; another student naming it must not be able
	// to destroy it or enroll through it.
	_, err := svc.CompletePurchase(context.Background(), "eve@example.com", validPurchase())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, ledger.reserved)
	assert.Empty(t, selections.deleted)
	assert.Nil(t, store.created)
	assert.Empty(t, metrics.results)
}

func TestCompletePurchaseRejectsSelectionClassMismatch(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{selections: map[string]models.Selection{
		"sel-1": {ID: "sel-1", StudentEmail: "sam@example.com", ClassID: "class-2"},
	}}
	svc := NewPurchaseService(ledger, store, selections, nil, nil, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, ledger.reserved)
	assert.Empty(t, selections.deleted)
}

func TestCompletePurchaseSelectionLookupFailure(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{findErr: errors.New("connection reset")}
	svc := NewPurchaseService(ledger, store, selections, nil, nil, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErr.Code)
	assert.Empty(t, ledger.reserved)
}

func TestCompletePurchaseIdempotentReplay(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{}
	metrics := &mockPurchaseMetrics{}
	svc := NewPurchaseService(ledger, store, selections, nil, metrics, nil, nil)

	first, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	require.NoError(t, err)

	second, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	// Two reservations came in but only one enrollment exists; the second
	// attempt's seat goes back.
	assert.Equal(t, []string{"class-1", "class-1"}, ledger.reserved)
	assert.Equal(t, []string{"class-1"}, ledger.released)
	assert.Equal(t, []string{"success", "replay"}, metrics.results)
}

func TestCompletePurchaseReplayDifferentStudentConflicts(t *testing.T) {
	ledger := &mockSeatLedger{}
	store := &mockEnrollmentStore{}
	selections := &mockSelectionStore{}
	svc := NewPurchaseService(ledger, store, selections, nil, nil, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", validPurchase())
	require.NoError(t, err)

	_, err = svc.CompletePurchase(context.Background(), "eve@example.com", validPurchase())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCompletePurchaseValidation(t *testing.T) {
	svc := NewPurchaseService(&mockSeatLedger{}, &mockEnrollmentStore{}, &mockSelectionStore{}, nil, nil, nil, nil)

	_, err := svc.CompletePurchase(context.Background(), "sam@example.com", PurchaseRequest{ClassID: "class-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

type countingSeatLedger struct {
	mu    sync.Mutex
	seats int
}

func (l *countingSeatLedger) ReserveSeat(ctx context.Context, classID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seats == 0 {
		return appErrors.ErrSoldOut
	}
	l.seats--
	return nil
}

func (l *countingSeatLedger) ReleaseSeat(ctx context.Context, classID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seats++
	return nil
}

func (l *countingSeatLedger) remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seats
}

type concurrentEnrollmentStore struct {
	mu      sync.Mutex
	records []models.Enrollment
}

func (m *concurrentEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *enrollment)
	return nil
}

func (m *concurrentEnrollmentStore) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (m *concurrentEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.records {
		if e.ID == id {
			return &models.EnrollmentDetail{Enrollment: e}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *concurrentEnrollmentStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type clearedSelectionStore struct{}

func (clearedSelectionStore) FindByID(ctx context.Context, id string) (*models.Selection, error) {
	return nil, sql.ErrNoRows
}

func (clearedSelectionStore) Delete(ctx context.Context, id string) error { return sql.ErrNoRows }

func TestCompletePurchaseConcurrentSeatLimit(t *testing.T) {
	const seats = 3
	const attempts = 10

	ledger := &countingSeatLedger{seats: seats}
	store := &concurrentEnrollmentStore{}
	svc := NewPurchaseService(ledger, store, clearedSelectionStore{}, nil, nil, nil, nil)

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := PurchaseRequest{
				SelectionID: fmt.Sprintf("sel-%d", i),
				ClassID:     "class-1",
				PaymentRef:  fmt.Sprintf("pay_%d", i),
				Amount:      49.99,
			}
			_, results[i] = svc.CompletePurchase(context.Background(), fmt.Sprintf("student%d@example.com", i), req)
		}(i)
	}
	wg.Wait()

	var succeeded, soldOut int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		require.Equal(t, appErrors.ErrSoldOut.Code, appErr.Code)
		soldOut++
	}
	// Exactly the seat count succeeds no matter how the attempts race.
	assert.Equal(t, seats, succeeded)
	assert.Equal(t, attempts-seats, soldOut)
	assert.Equal(t, seats, store.count())
	assert.Equal(t, 0, ledger.remaining())
}

func TestCleanupHandlerTreatsMissingAsDone(t *testing.T) {
	selections := &mockSelectionStore{deleteErr: sql.ErrNoRows}
	handler := CleanupHandler(selections, nil)

	job := jobs.Job{
		ID:      "job-1",
		Type:    JobTypeSelectionCleanup,
		Payload: SelectionCleanupPayload{SelectionID: "sel-1", StudentEmail: "sam@example.com"},
	}
	require.NoError(t, handler(context.Background(), job))
}

func TestCleanupHandlerRetriesRealFailures(t *testing.T) {
	selections := &mockSelectionStore{deleteErr: errors.New("timeout")}
	handler := CleanupHandler(selections, nil)

	job := jobs.Job{
		ID:      "job-1",
		Type:    JobTypeSelectionCleanup,
		Payload: SelectionCleanupPayload{SelectionID: "sel-1", StudentEmail: "sam@example.com"},
	}
	require.Error(t, handler(context.Background(), job))
}
