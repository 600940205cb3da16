package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

const catalogCacheKey = "classes:catalog"

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	ListByInstructor(ctx context.Context, instructorEmail string) ([]models.Class, error)
	UpdateStatus(ctx context.Context, id string, status models.ClassStatus, feedback *string) error
	UpdateCapacity(ctx context.Context, id string, capacity int) error
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateClassRequest describes class publication payload.
type CreateClassRequest struct {
	Name     string  `json:"name" validate:"required"`
	ImageURL string  `json:"image_url"`
	Capacity int     `json:"capacity" validate:"required,gt=0"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// ReviewClassRequest describes the admin moderation payload.
type ReviewClassRequest struct {
	Status   models.ClassStatus `json:"status" validate:"required"`
	Feedback *string            `json:"feedback"`
}

// UpdateCapacityRequest changes the seat capacity of a class.
type UpdateCapacityRequest struct {
	Capacity int `json:"capacity" validate:"required,gte=0"`
}

// ClassService orchestrates the class lifecycle: publication by
// instructors, moderation by admins and capacity administration.
type ClassService struct {
	repo      classRepository
	cache     catalogCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, cache catalogCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ClassService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// Create publishes a new class in PENDING state owned by the caller.
func (s *ClassService) Create(ctx context.Context, instructorEmail string, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{
		InstructorEmail: instructorEmail,
		Name:            req.Name,
		ImageURL:        req.ImageURL,
		Capacity:        req.Capacity,
		EnrolledCount:   0,
		Status:          models.ClassStatusPending,
		Price:           req.Price,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create class")
	}
	s.invalidateCatalog(ctx)
	return class, nil
}

// Catalog returns the approved classes students can browse, cached.
func (s *ClassService) Catalog(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	filter.Status = models.ClassStatusApproved

	type cached struct {
		Classes    []models.Class     `json:"classes"`
		Pagination *models.Pagination `json:"pagination"`
	}

	useCache := s.cache != nil && filter.Search == "" && filter.Page <= 1 && filter.SortBy == ""
	if useCache {
		var hit cached
		if err := s.cache.Get(ctx, catalogCacheKey, &hit); err == nil {
			return hit.Classes, hit.Pagination, nil
		}
	}

	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list classes")
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

	if useCache {
		if err := s.cache.Set(ctx, catalogCacheKey, cached{Classes: classes, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache class catalog", zap.Error(err))
		}
	}
	return classes, pagination, nil
}

// ListAll returns every class regardless of status, for admins.
func (s *ClassService) ListAll(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load class")
	}
	return class, nil
}

// ListByInstructor returns the instructor's dashboard view.
func (s *ClassService) ListByInstructor(ctx context.Context, instructorEmail string) ([]models.Class, error) {
	classes, err := s.repo.ListByInstructor(ctx, instructorEmail)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list instructor classes")
	}
	return classes, nil
}

// Review approves or denies a pending class, with optional feedback.
func (s *ClassService) Review(ctx context.Context, id string, req ReviewClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if req.Status != models.ClassStatusApproved && req.Status != models.ClassStatusDenied {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or DENIED")
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status, req.Feedback); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update class status")
	}
	s.invalidateCatalog(ctx)
	return s.Get(ctx, id)
}

// UpdateCapacity resizes a class. Only the owning instructor or an
// admin may call it; reductions below current enrollment are rejected
// by the ledger and capacity stays unchanged.
func (s *ClassService) UpdateCapacity(ctx context.Context, id string, actorEmail string, actorRole models.UserRole, req UpdateCapacityRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorRole != models.RoleAdmin && class.InstructorEmail != actorEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another instructor")
	}

	if err := s.repo.UpdateCapacity(ctx, id, req.Capacity); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update capacity")
	}
	s.invalidateCatalog(ctx)
	return s.Get(ctx, id)
}

func (s *ClassService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "classes:*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
