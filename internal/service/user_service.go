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

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindRole(ctx context.Context, email string) (models.UserRole, error)
	UpdateRole(ctx context.Context, email string, role models.UserRole) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// UserService provides directory lookups and role administration.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// Me returns the directory record for the authenticated subject.
func (s *UserService) Me(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load user")
	}
	return user, nil
}

// RoleFor resolves the subject's current role for authorization checks.
func (s *UserService) RoleFor(ctx context.Context, email string) (models.UserRole, error) {
	role, err := s.repo.FindRole(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "subject has no directory record")
		}
		return "", appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load role")
	}
	return role, nil
}

// Promote assigns a privileged role to the target subject. Only
// INSTRUCTOR and ADMIN may be assigned; re-applying the current role is
// a no-op success.
func (s *UserService) Promote(ctx context.Context, targetEmail string, role models.UserRole) (*models.User, error) {
	if role != models.RoleInstructor && role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be INSTRUCTOR or ADMIN")
	}

	user, err := s.repo.FindByEmail(ctx, targetEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load target user")
	}

	if user.Role == role {
		return user, nil
	}

	if err := s.repo.UpdateRole(ctx, targetEmail, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update role")
	}

	s.logger.Info("role promoted",
		zap.String("target", targetEmail),
		zap.String("from", string(user.Role)),
		zap.String("to", string(role)),
	)

	user.Role = role
	return user, nil
}

// List returns users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return users, pagination, nil
}
