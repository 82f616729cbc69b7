package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diabetes-clinic-server/internal/logger"
	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/utils"
)

const secret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(guards ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger.NewNop()))
	handlers := append([]gin.HandlerFunc{AuthMiddleware(secret)}, guards...)
	handlers = append(handlers, func(c *gin.Context) {
		actor, ok := GetActorFromContext(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, actor)
	})
	r.GET("/patients/:patientId", handlers...)
	return r
}

func bearer(t *testing.T, actor models.Actor, key string) string {
	t.Helper()
	token, err := utils.GenerateAccessToken(actor, key, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newEngine()
	doctor := models.Actor{ID: "doc-1", Name: "Dr. Ahmed", Role: models.RoleDoctor}

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong secret", bearer(t, doctor, "other-secret"), http.StatusUnauthorized},
		{"unknown role", bearer(t, models.Actor{ID: "x", Role: "janitor"}, secret), http.StatusUnauthorized},
		{"valid", bearer(t, doctor, secret), http.StatusOK},
		{"lowercase scheme", "bearer " + bearer(t, doctor, secret)[len("Bearer "):], http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, "/patients/p-1", tt.auth)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := serve(r, "/patients/p-1", bearer(t, doctor, secret))
	assert.JSONEq(t, `{"id":"doc-1","name":"Dr. Ahmed","role":"doctor"}`, w.Body.String())
}

func TestRoleAuthMiddleware(t *testing.T) {
	r := newEngine(RoleAuthMiddleware(models.RoleStaff, models.RoleAdmin))

	w := serve(r, "/patients/p-1", bearer(t, models.Actor{ID: "s", Role: models.RoleStaff}, secret))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, "/patients/p-1", bearer(t, models.Actor{ID: "d", Role: models.RoleDoctor}, secret))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRoleAuthMiddleware_WithoutAuth(t *testing.T) {
	r := gin.New()
	r.GET("/x", RoleAuthMiddleware(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPatientSelfOrRoles(t *testing.T) {
	r := newEngine(PatientSelfOrRoles(models.RoleDoctor))

	self := models.Actor{ID: "p-1", Role: models.RolePatient}
	assert.Equal(t, http.StatusOK, serve(r, "/patients/p-1", bearer(t, self, secret)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/patients/p-2", bearer(t, self, secret)).Code)

	doctor := models.Actor{ID: "d-1", Role: models.RoleDoctor}
	assert.Equal(t, http.StatusOK, serve(r, "/patients/p-2", bearer(t, doctor, secret)).Code)

	staff := models.Actor{ID: "s-1", Role: models.RoleStaff}
	assert.Equal(t, http.StatusForbidden, serve(r, "/patients/p-2", bearer(t, staff, secret)).Code)
}
