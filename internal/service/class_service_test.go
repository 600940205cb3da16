package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

type mockClassRepo struct {
	classes     map[string]models.Class
	created     *models.Class
	capacityErr error
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.classes == nil {
		m.classes = make(map[string]models.Class)
	}
	if class.ID == "" {
		class.ID = "new-class"
	}
	m.classes[class.ID] = *class
	m.created = class
	return nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	var list []models.Class
	for _, c := range m.classes {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		list = append(list, c)
	}
	return list, len(list), nil
}

func (m *mockClassRepo) ListByInstructor(ctx context.Context, instructorEmail string) ([]models.Class, error) {
	var list []models.Class
	for _, c := range m.classes {
		if c.InstructorEmail == instructorEmail {
			list = append(list, c)
		}
	}
	return list, nil
}

func (m *mockClassRepo) UpdateStatus(ctx context.Context, id string, status models.ClassStatus, feedback *string) error {
	c, ok := m.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	c.Feedback = feedback
	m.classes[id] = c
	return nil
}

func (m *mockClassRepo) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	if m.capacityErr != nil {
		return m.capacityErr
	}
	c, ok := m.classes[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	c.Capacity = capacity
	m.classes[id] = c
	return nil
}

type mockCatalogCache struct {
	store      map[string][]byte
	deleted    []string
	setCount   int
	getHits    int
	getMisses  int
}

func (m *mockCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	if raw, ok := m.store[key]; ok {
		m.getHits++
		return json.Unmarshal(raw, dest)
	}
	m.getMisses++
	return appErrors.ErrCacheMiss
}

func (m *mockCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	m.setCount++
	return nil
}

func (m *mockCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	m.store = nil
	return nil
}

func approvedClass(id, instructor string) models.Class {
	return models.Class{
		ID:              id,
		InstructorEmail: instructor,
		Name:            "Jazz Piano Basics",
		Capacity:        20,
		EnrolledCount:   5,
		Status:          models.ClassStatusApproved,
		Price:           49.99,
	}
}

func TestClassServiceCreateStartsPending(t *testing.T) {
	repo := &mockClassRepo{}
	cache := &mockCatalogCache{}
	svc := NewClassService(repo, cache, time.Minute, nil, nil)

	class, err := svc.Create(context.Background(), "ines@example.com", CreateClassRequest{
		Name:     "Jazz Piano Basics",
		Capacity: 20,
		Price:    49.99,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusPending, class.Status)
	assert.Equal(t, 0, class.EnrolledCount)
	assert.Equal(t, "ines@example.com", class.InstructorEmail)
	assert.NotEmpty(t, cache.deleted)
}

func TestClassServiceCatalogOnlyApproved(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": approvedClass("class-1", "ines@example.com"),
		"class-2": {ID: "class-2", Status: models.ClassStatusPending},
	}}
	svc := NewClassService(repo, nil, time.Minute, nil, nil)

	classes, pagination, err := svc.Catalog(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "class-1", classes[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestClassServiceCatalogUsesCache(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": approvedClass("class-1", "ines@example.com"),
	}}
	cache := &mockCatalogCache{}
	svc := NewClassService(repo, cache, time.Minute, nil, nil)

	_, _, err := svc.Catalog(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.setCount)

	classes, _, err := svc.Catalog(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 1, cache.getHits)
	assert.Equal(t, 1, cache.setCount)
}

func TestClassServiceReviewRequiresDecision(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Status: models.ClassStatusPending},
	}}
	svc := NewClassService(repo, nil, time.Minute, nil, nil)

	_, err := svc.Review(context.Background(), "class-1", ReviewClassRequest{Status: models.ClassStatusPending})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	feedback := "solid syllabus"
	class, err := svc.Review(context.Background(), "class-1", ReviewClassRequest{Status: models.ClassStatusApproved, Feedback: &feedback})
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusApproved, class.Status)
	require.NotNil(t, class.Feedback)
	assert.Equal(t, feedback, *class.Feedback)
}

func TestClassServiceUpdateCapacityOwnership(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": approvedClass("class-1", "ines@example.com"),
	}}
	svc := NewClassService(repo, nil, time.Minute, nil, nil)

	_, err := svc.UpdateCapacity(context.Background(), "class-1", "other@example.com", models.RoleInstructor, UpdateCapacityRequest{Capacity: 30})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	class, err := svc.UpdateCapacity(context.Background(), "class-1", "other@example.com", models.RoleAdmin, UpdateCapacityRequest{Capacity: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, class.Capacity)
}

func TestClassServiceUpdateCapacityBelowEnrollment(t *testing.T) {
	repo := &mockClassRepo{
		classes: map[string]models.Class{
			"class-1": approvedClass("class-1", "ines@example.com"),
		},
		capacityErr: appErrors.ErrCapacityBelowEnrollment,
	}
	svc := NewClassService(repo, nil, time.Minute, nil, nil)

	_, err := svc.UpdateCapacity(context.Background(), "class-1", "ines@example.com", models.RoleInstructor, UpdateCapacityRequest{Capacity: 2})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCapacityBelowEnrollment.Code, appErr.Code)
}
