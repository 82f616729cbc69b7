package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diabetes-clinic-server/internal/apperrors"
)

type sampleForm struct {
	Serial   string `json:"serialNumber" validate:"required"`
	Years    int    `json:"warrantyDurationYears" validate:"required,min=1,max=10"`
	Priority string `json:"priority" validate:"omitempty,oneof=Routine Urgent"`
	Internal string `json:"-" validate:"required"`
}

func TestValidateFields(t *testing.T) {
	fields := ValidateFields(sampleForm{Years: 12, Priority: "Soon", Internal: "x"})

	byName := map[string]string{}
	for _, f := range fields {
		byName[f.Field] = f.Message
	}
	assert.Equal(t, "is required", byName["serialNumber"])
	assert.Equal(t, "must be at most 10", byName["warrantyDurationYears"])
	assert.Equal(t, "must be one of: Routine, Urgent", byName["priority"])

	assert.Empty(t, ValidateFields(sampleForm{Serial: "A", Years: 2, Internal: "x"}))
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.NewValidationError(apperrors.FieldError{Field: "reason", Message: "is required"}), http.StatusBadRequest},
		{"conflict", apperrors.NewConflictError("equipment", "slot taken"), http.StatusConflict},
		{"not found", apperrors.NewNotFoundError("lab order", "o-1"), http.StatusNotFound},
		{"wrapped not found", errors.Join(errors.New("context"), apperrors.NewNotFoundError("lab result", "r-1")), http.StatusNotFound},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondError(c, tt.err)

			assert.Equal(t, tt.want, w.Code)
			var body ResponseData
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
			if tt.want == http.StatusBadRequest {
				require.Len(t, body.FieldErrors, 1)
				assert.Equal(t, "reason", body.FieldErrors[0].Field)
			}
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, body.Error, "disk on fire")
			}
		})
	}
}
