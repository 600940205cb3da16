package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

type selectionRepository interface {
	Create(ctx context.Context, selection *models.Selection) error
	FindByID(ctx context.Context, id string) (*models.Selection, error)
	ListByStudent(ctx context.Context, studentEmail string) ([]models.SelectionDetail, error)
	Delete(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// SelectClassRequest describes the selection payload.
type SelectClassRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// SelectionService manages students' pending selections.
type SelectionService struct {
	repo      selectionRepository
	classes   classReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSelectionService constructs SelectionService.
func NewSelectionService(repo selectionRepository, classes classReader, validate *validator.Validate, logger *zap.Logger) *SelectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// Select records the student's intent to purchase an approved class.
func (s *SelectionService) Select(ctx context.Context, studentEmail string, req SelectClassRequest) (*models.Selection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load class")
	}
	if class.Status != models.ClassStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class is not open for enrollment")
	}

	selection := &models.Selection{StudentEmail: studentEmail, ClassID: req.ClassID}
	if err := s.repo.Create(ctx, selection); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create selection")
	}
	return selection, nil
}

// List returns the student's pending selections.
func (s *SelectionService) List(ctx context.Context, studentEmail string) ([]models.SelectionDetail, error) {
	selections, err := s.repo.ListByStudent(ctx, studentEmail)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list selections")
	}
	return selections, nil
}

// Remove deletes a selection owned by the student. A selection that is
// already gone reports not-found rather than a silent success.
func (s *SelectionService) Remove(ctx context.Context, studentEmail, id string) error {
	selection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "selection not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load selection")
	}
	if selection.StudentEmail != studentEmail {
		return appErrors.Clone(appErrors.ErrForbidden, "selection belongs to another student")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "selection not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete selection")
	}
	return nil
}
