//go:build unit || e2e

package authtest

import (
	"testing"
	"time"

	"auditorium-reservation/internal/domain/user"
	"auditorium-reservation/internal/pkg/config"
	"auditorium-reservation/internal/pkg/jwt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const tokenTTL = time.Hour

type JWTHelper struct {
	service *jwt.Service
}

func NewJWTHelper(cfg config.JWTConfig) *JWTHelper {
	return &JWTHelper{service: jwt.NewService(cfg.Secret)}
}

func (h *JWTHelper) GenerateToken(t *testing.T, userID uuid.UUID, role user.Role) string {
	t.Helper()
	token, err := h.service.GenerateToken(userID, role, tokenTTL)
	require.NoError(t, err)
	return token
}

func (h *JWTHelper) CreateExpiredToken(t *testing.T, userID uuid.UUID, role user.Role) string {
	t.Helper()
	token, err := h.service.GenerateToken(userID, role, -time.Minute)
	require.NoError(t, err)
	return token
}

// Caller is an authenticated test identity.
type Caller struct {
	ID    uuid.UUID
	Role  user.Role
	Token string
}

func (h *JWTHelper) NewCaller(t *testing.T, role user.Role) Caller {
	t.Helper()
	id := uuid.New()
	return Caller{ID: id, Role: role, Token: h.GenerateToken(t, id, role)}
}
