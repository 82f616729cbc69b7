package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diabetes-clinic-server/internal/models"
)

func TestGenerateAndValidateToken(t *testing.T) {
	actor := models.Actor{ID: "lab-7", Name: "Lab Tech Sara", Role: models.RoleLab}

	token, err := GenerateAccessToken(actor, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())
	assert.Equal(t, "lab-7", claims.Subject)
}

func TestValidateToken_Rejects(t *testing.T) {
	actor := models.Actor{ID: "u", Role: models.RoleStaff}

	expired, err := GenerateAccessToken(actor, "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired, "s3cret")
	assert.Error(t, err)

	valid, err := GenerateAccessToken(actor, "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(valid, "other")
	assert.Error(t, err)

	badRole, err := GenerateAccessToken(models.Actor{ID: "u", Role: "superuser"}, "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(badRole, "s3cret")
	assert.ErrorContains(t, err, "unknown role")
}
