package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/jobs"
)

// PurchaseState tracks progress through the enrollment transaction.
type PurchaseState string

const (
	StateInitiated          PurchaseState = "INITIATED"
	StateSeatReserved       PurchaseState = "SEAT_RESERVED"
	StateEnrollmentRecorded PurchaseState = "ENROLLMENT_RECORDED"
	StateSelectionCleared   PurchaseState = "SELECTION_CLEARED"
	StateSeatReleased       PurchaseState = "SEAT_RELEASED"
	StateAborted            PurchaseState = "ABORTED"
)

// JobTypeSelectionCleanup identifies deferred stale-selection deletes.
const JobTypeSelectionCleanup = "selection_cleanup"

// SelectionCleanupPayload is the queued payload for a stale selection.
type SelectionCleanupPayload struct {
	SelectionID  string
	StudentEmail string
}

type seatLedger interface {
	ReserveSeat(ctx context.Context, classID string) error
	ReleaseSeat(ctx context.Context, classID string) error
}

type enrollmentWriter interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type selectionRemover interface {
	Delete(ctx context.Context, id string) error
}

type selectionStore interface {
	FindByID(ctx context.Context, id string) (*models.Selection, error)
	Delete(ctx context.Context, id string) error
}

type cleanupQueue interface {
	Enqueue(job jobs.Job) error
}

type purchaseMetrics interface {
	ObservePurchase(result string)
}

// PurchaseRequest is the completePurchase payload. The student is taken
// from the verified credential, never from the client.
type PurchaseRequest struct {
	SelectionID string  `json:"selection_id" validate:"required"`
	ClassID     string  `json:"class_id" validate:"required"`
	PaymentRef  string  `json:"payment_ref" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
}

// PurchaseService is the enrollment transaction coordinator. It runs
// the seat-reserve / record-enrollment / clear-selection sequence as an
// explicit state machine with defined compensations:
//
//	Initiated -> SeatReserved -> EnrollmentRecorded -> SelectionCleared
//	SeatReserved -> SeatReleased -> Aborted on enrollment failure
//	Initiated -> Aborted when the seat reservation itself fails
//
// A failed selection cleanup after payment is non-fatal: the enrollment
// stands and the stale selection is handed to the cleanup queue.
type PurchaseService struct {
	ledger      seatLedger
	enrollments enrollmentWriter
	selections  selectionStore
	queue       cleanupQueue
	metrics     purchaseMetrics
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPurchaseService constructs PurchaseService.
func NewPurchaseService(ledger seatLedger, enrollments enrollmentWriter, selections selectionStore, queue cleanupQueue, metrics purchaseMetrics, validate *validator.Validate, logger *zap.Logger) *PurchaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseService{
		ledger:      ledger,
		enrollments: enrollments,
		selections:  selections,
		queue:       queue,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// CompletePurchase converts a paid selection into a confirmed
// enrollment. Payment-intent creation has already happened; this method
// must therefore never lose a paid enrollment once the record is
// written, and must never leave a reserved seat without one.
func (s *PurchaseService) CompletePurchase(ctx context.Context, studentEmail string, req PurchaseRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purchase payload")
	}

	state := StateInitiated
	log := s.logger.With(
		zap.String("student", studentEmail),
		zap.String("class_id", req.ClassID),
		zap.String("selection_id", req.SelectionID),
		zap.String("payment_ref", req.PaymentRef),
	)

	// The selection id is client-supplied, so it must belong to the
	// purchasing student and reference the class being bought. A
	// selection that no longer exists is tolerated here; a replay has
	// already cleared it and step 3 handles that case.
	if selection, err := s.selections.FindByID(ctx, req.SelectionID); err == nil {
		if selection.StudentEmail != studentEmail {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "selection belongs to another student")
		}
		if selection.ClassID != req.ClassID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "selection does not reference this class")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load selection")
	}

	// Step 1: claim a seat before anything is written.
	if err := s.ledger.ReserveSeat(ctx, req.ClassID); err != nil {
		state = StateAborted
		log.Info("purchase aborted at seat reservation", zap.String("state", string(state)), zap.Error(err))
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			s.observe(appErr.Code)
			return nil, err
		}
		s.observe("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to reserve seat")
	}
	state = StateSeatReserved
	log.Debug("seat reserved", zap.String("state", string(state)))

	// Step 2: append the enrollment record.
	enrollment := &models.Enrollment{
		ID:           uuid.NewString(),
		StudentEmail: studentEmail,
		ClassID:      req.ClassID,
		Amount:       req.Amount,
		PaymentRef:   req.PaymentRef,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrConflict.Code {
			// Replay of an already-recorded payment reference: release
			// the seat reserved by this attempt and return the original.
			return s.resolveReplay(ctx, log, studentEmail, req)
		}
		s.compensate(ctx, log, req.ClassID, &state)
		s.observe("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to record enrollment")
	}
	state = StateEnrollmentRecorded
	log.Debug("enrollment recorded", zap.String("state", string(state)), zap.String("enrollment_id", enrollment.ID))

	// Step 3: clear the originating selection. Failure here never rolls
	// back a paid enrollment.
	if err := s.selections.Delete(ctx, req.SelectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("selection already cleared", zap.String("state", string(state)))
		} else {
			log.Warn("selection cleanup failed, deferring", zap.String("state", string(state)), zap.Error(err))
			s.deferCleanup(req.SelectionID, studentEmail, log)
		}
	} else {
		state = StateSelectionCleared
	}

	s.observe("success")
	log.Info("purchase completed", zap.String("state", string(state)), zap.String("enrollment_id", enrollment.ID))

	detail, err := s.enrollments.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		// The enrollment is committed; fall back to the bare record.
		log.Warn("failed to load enrollment detail", zap.Error(err))
		return &models.EnrollmentDetail{Enrollment: *enrollment}, nil
	}
	return detail, nil
}

// resolveReplay handles a duplicate payment reference: the earlier
// attempt already recorded the enrollment, so the seat reserved by this
// attempt is returned and the original record is replayed to the caller.
func (s *PurchaseService) resolveReplay(ctx context.Context, log *zap.Logger, studentEmail string, req PurchaseRequest) (*models.EnrollmentDetail, error) {
	if err := s.ledger.ReleaseSeat(ctx, req.ClassID); err != nil {
		log.Error("failed to release seat during replay", zap.Error(err))
	}

	existing, err := s.enrollments.FindByPaymentRef(ctx, req.PaymentRef)
	if err != nil {
		s.observe("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load existing enrollment")
	}
	if existing.StudentEmail != studentEmail || existing.ClassID != req.ClassID {
		s.observe("failed")
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment reference belongs to a different purchase")
	}

	s.observe("replay")
	log.Info("purchase replayed idempotently", zap.String("enrollment_id", existing.ID))

	detail, err := s.enrollments.FindDetailByID(ctx, existing.ID)
	if err != nil {
		return &models.EnrollmentDetail{Enrollment: *existing}, nil
	}
	return detail, nil
}

// compensate releases a reserved seat after a failed enrollment write.
// The seat count must never stay decremented without a matching record.
func (s *PurchaseService) compensate(ctx context.Context, log *zap.Logger, classID string, state *PurchaseState) {
	if err := s.ledger.ReleaseSeat(ctx, classID); err != nil {
		// Compensation itself failed: the seat leak is loud, not silent.
		log.Error("seat release compensation failed", zap.Error(err))
	} else {
		*state = StateSeatReleased
		log.Info("seat released", zap.String("state", string(*state)))
	}
	*state = StateAborted
}

func (s *PurchaseService) deferCleanup(selectionID, studentEmail string, log *zap.Logger) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: JobTypeSelectionCleanup,
		Payload: SelectionCleanupPayload{
			SelectionID:  selectionID,
			StudentEmail: studentEmail,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		log.Error("failed to enqueue selection cleanup", zap.Error(err))
	}
}

// observe records the purchase outcome. Error codes arrive upper-case
// and are folded to match the lower-case result label set.
func (s *PurchaseService) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObservePurchase(strings.ToLower(result))
	}
}

// CleanupHandler returns the jobs.Handler that retries stale-selection
// deletes. A selection that is already gone counts as done.
func CleanupHandler(selections selectionRemover, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(SelectionCleanupPayload)
		if !ok {
			logger.Error("unexpected cleanup payload", zap.String("job_id", job.ID))
			return nil
		}
		if err := selections.Delete(ctx, payload.SelectionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		logger.Info("stale selection cleared",
			zap.String("selection_id", payload.SelectionID),
			zap.String("student", payload.StudentEmail),
		)
		return nil
	}
}
