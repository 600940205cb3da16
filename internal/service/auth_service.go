package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
)

type identityRepository interface {
	Upsert(ctx context.Context, user *models.User) error
}

// AuthConfig defines configuration for token issuance.
type AuthConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthService is the identity verifier. The issuing side mints
// fixed-lifetime HS256 tokens carrying only {sub, iat, exp}; the
// verifying side checks signature and expiry. Roles never ride in the
// token and are resolved against the user directory per request.
type AuthService struct {
	repo      identityRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo identityRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Expiration <= 0 {
		config.Expiration = time.Hour
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config}
}

// SignIn records the identity on first contact and issues an access
// token. Re-signing-in refreshes the display name but never the role.
func (s *AuthService) SignIn(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-in payload")
	}

	user := &models.User{Email: req.Email, FullName: req.FullName, Role: models.RoleUnassigned}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to record identity")
	}

	token, issuedAt, err := s.IssueToken(req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue token")
	}

	return &models.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.Expiration.Seconds()),
		IssuedAt:    issuedAt,
	}, nil
}

// IssueToken signs an access token for the given subject.
func (s *AuthService) IssueToken(subject string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.Expiration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}

// ValidateToken parses and validates an access token returning the
// claims. Any cryptographic or expiry failure maps to the same
// credential error; nothing else from the token is trusted downstream.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidCredential.Code, appErrors.ErrInvalidCredential.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredential, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredential, "token missing subject")
	}

	return claims, nil
}
