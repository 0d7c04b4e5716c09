package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail         *models.User
	userByID            *models.User
	findByEmailErr      error
	findByIDErr         error
	refreshTokens       map[string]*models.RefreshToken
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	updatePasswordErr   error
	lastLoginUpdated    bool
	revokedAllFor       string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = userID
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "booknova",
	}
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Name: "Ada", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: true, Role: models.RoleAdmin, AccessLevel: models.AccessManage}}
	audit := &auditRecorder{}
	svc := NewAuthService(repo, audit, nil, zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: " User@Example.com ", Password: "password", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	assert.Len(t, repo.refreshTokens, 1)
	assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())
}

func TestAuthServiceLoginRejections(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		pass string
		code string
	}{
		{name: "wrong password", user: &models.User{ID: "1", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: true}, pass: "nope", code: appErrors.ErrInvalidCredentials.Code},
		{name: "inactive", user: &models.User{ID: "1", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: false}, pass: "password", code: appErrors.ErrInactiveAccount.Code},
		{name: "deleted", user: &models.User{ID: "1", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: true, Deleted: true}, pass: "password", code: appErrors.ErrInactiveAccount.Code},
		{name: "unknown email", user: nil, pass: "password", code: appErrors.ErrInvalidCredentials.Code},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockAuthRepo{userByEmail: tc.user}
			svc := NewAuthService(repo, nil, nil, zap.NewNop(), testAuthConfig())

			_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: tc.pass})
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Empty(t, repo.refreshTokens)
		})
	}
}

func TestAuthServiceSingleSessionRevokesPreviousTokens(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: hashed(t, "password"), Active: true}}
	cfg := testAuthConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, nil, nil, zap.NewNop(), cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "u1", repo.revokedAllFor)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleUser}
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := NewAuthService(repo, nil, nil, zap.NewNop(), testAuthConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"old": {ID: "rt1", UserID: "u1", Token: "old", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	svc := NewAuthService(repo, nil, nil, zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.Error(t, err)
	assert.Equal(t, "refresh token is expired or revoked", appErrors.FromError(err).Message)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	audit := &auditRecorder{}
	svc := NewAuthService(repo, audit, nil, zap.NewNop(), testAuthConfig())

	err := svc.Logout(context.Background(), "token", models.AuditMeta{ActorID: "someone-else"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.refreshTokens["token"].Revoked)

	require.NoError(t, svc.Logout(context.Background(), "token", models.AuditMeta{ActorID: "u1"}))
	assert.True(t, repo.refreshTokens["token"].Revoked)
	assert.Equal(t, []string{models.AuditActionLogout}, audit.actions())
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash := hashed(t, "oldpassword")
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: oldHash, Active: true}}
	svc := NewAuthService(repo, nil, nil, zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"}, models.AuditMeta{ActorID: "u1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.ChangePassword(context.Background(), models.ChangePasswordRequest{OldPassword: "oldpassword", NewPassword: "newpassword"}, models.AuditMeta{ActorID: "u1"})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, repo.userByEmail.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.userByEmail.PasswordHash), []byte("newpassword")))
	assert.Equal(t, "u1", repo.revokedAllFor)
}

func TestAuthServiceMe(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Name: "Ada", Email: "user@example.com", Role: models.RoleUser, AccessLevel: models.AccessReadWrite}}
	svc := NewAuthService(repo, nil, nil, zap.NewNop(), testAuthConfig())

	info, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", info.Name)

	_, err = svc.Me(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), testAuthConfig())
	user := &models.User{ID: "u1", Name: "Ada", Email: "user@example.com", Role: models.RoleAdmin, AccessLevel: models.AccessManage}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.AccessManage, claims.AccessLevel)
	assert.Equal(t, "Ada", claims.Name)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), testAuthConfig())

	other := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour, Issuer: "booknova"})
	foreign, _, err := other.generateAccessToken(&models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	require.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenDowngradesUnknownAccessLevel(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), testAuthConfig())
	token, _, err := svc.generateAccessToken(&models.User{ID: "u1", Role: models.RoleUser, AccessLevel: "ROOT"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.AccessReadOnly, claims.AccessLevel)
}
