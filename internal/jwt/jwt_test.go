package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "auditflow/pkg/domain-errors"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := New("test-signing-key", "auditflow")
	userID := uuid.New()

	token, err := svc.Generate(userID, "admin", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := New("test-signing-key", "auditflow")

	token, err := svc.Generate(uuid.New(), "user", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateWrongKey(t *testing.T) {
	token, err := New("key-one", "auditflow").Generate(uuid.New(), "user", time.Hour)
	require.NoError(t, err)

	_, err = New("key-two", "auditflow").ValidateToken(token)
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeUnauthorized))
}

func TestValidateGarbage(t *testing.T) {
	svc := New("test-signing-key", "auditflow")
	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}
