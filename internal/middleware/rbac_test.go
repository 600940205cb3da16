package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodyhq/melody-api/internal/models"
	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

type staticDirectory struct {
	roles map[string]models.UserRole
}

func (d *staticDirectory) RoleFor(ctx context.Context, email string) (models.UserRole, error) {
	if role, ok := d.roles[email]; ok {
		return role, nil
	}
	return "", appErrors.Clone(appErrors.ErrForbidden, "subject has no directory record")
}

func newRBACTestRouter(directory RoleDirectory, allowed ...models.UserRole) (*gin.Engine, *service.AuthService) {
	gin.SetMode(gin.TestMode)
	authSvc := service.NewAuthService(nil, nil, nil, service.AuthConfig{
		Secret:     "secret",
		Expiration: time.Hour,
		Issuer:     "melody-api",
	})
	router := gin.New()
	router.Use(JWT(authSvc))
	router.Use(RequireRole(directory, allowed...))
	router.GET("/gated", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, authSvc
}

func doGated(t *testing.T, router *gin.Engine, authSvc *service.AuthService, subject string) *httptest.ResponseRecorder {
	t.Helper()
	token, _, err := authSvc.IssueToken(subject)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestRequireRoleAllows(t *testing.T) {
	directory := &staticDirectory{roles: map[string]models.UserRole{
		"admin@example.com": models.RoleAdmin,
	}}
	router, authSvc := newRBACTestRouter(directory, models.RoleAdmin)

	recorder := doGated(t, router, authSvc, "admin@example.com")
	require.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestRequireRoleExactMatchOnly(t *testing.T) {
	// ADMIN does not satisfy an INSTRUCTOR-only gate; there is no
	// hierarchy between roles.
	directory := &staticDirectory{roles: map[string]models.UserRole{
		"admin@example.com": models.RoleAdmin,
	}}
	router, authSvc := newRBACTestRouter(directory, models.RoleInstructor)

	recorder := doGated(t, router, authSvc, "admin@example.com")
	require.Equal(t, http.StatusForbidden, recorder.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "FORBIDDEN", envelope.Error.Code)
}

func TestRequireRoleUnknownSubject(t *testing.T) {
	router, authSvc := newRBACTestRouter(&staticDirectory{}, models.RoleStudent)

	recorder := doGated(t, router, authSvc, "ghost@example.com")
	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestRequireRoleDirectoryIsAuthoritative(t *testing.T) {
	// A validly signed token for a subject whose role changed after
	// issuance is judged by the directory, not the token.
	directory := &staticDirectory{roles: map[string]models.UserRole{
		"sam@example.com": models.RoleUnassigned,
	}}
	router, authSvc := newRBACTestRouter(directory, models.RoleStudent)

	recorder := doGated(t, router, authSvc, "sam@example.com")
	require.Equal(t, http.StatusForbidden, recorder.Code)

	directory.roles["sam@example.com"] = models.RoleStudent
	recorder = doGated(t, router, authSvc, "sam@example.com")
	require.Equal(t, http.StatusNoContent, recorder.Code)
}
