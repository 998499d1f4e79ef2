package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/joefazee/parimutuel/internal/security"
)

func newAuthRouter(maker security.Maker) (*gin.Engine, *uuid.UUID) {
	gin.SetMode(gin.TestMode)
	var seen uuid.UUID
	r := gin.New()
	r.GET("/me", Authenticate(maker), func(c *gin.Context) {
		seen = IdentityFromContext(c)
		c.Status(http.StatusNoContent)
	})
	return r, &seen
}

func TestAuthenticate(t *testing.T) {
	identity := uuid.New()
	valid := &security.Payload{
		ID:        uuid.New(),
		Identity:  identity,
		Scope:     security.TokenScopeAccess,
		IssuedAt:  time.Now(),
		ExpiredAt: time.Now().Add(time.Hour),
	}

	tests := []struct {
		name       string
		header     string
		setup      func(m *security.MockMaker)
		wantStatus int
		wantID     uuid.UUID
	}{
		{
			name:       "missing header",
			setup:      func(_ *security.MockMaker) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			header:     "Basic abc",
			setup:      func(_ *security.MockMaker) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "invalid token",
			header: "Bearer bad",
			setup: func(m *security.MockMaker) {
				m.On("VerifyToken", "bad").Return(nil, errors.New("invalid token"))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "wrong scope",
			header: "Bearer refresh",
			setup: func(m *security.MockMaker) {
				p := *valid
				p.Scope = "refresh"
				m.On("VerifyToken", "refresh").Return(&p, nil)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "valid token",
			header: "Bearer good",
			setup: func(m *security.MockMaker) {
				m.On("VerifyToken", "good").Return(valid, nil)
			},
			wantStatus: http.StatusNoContent,
			wantID:     identity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maker := new(security.MockMaker)
			tt.setup(maker)
			r, seen := newAuthRouter(maker)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantID, *seen)
			maker.AssertExpectations(t)
		})
	}
}

func TestIdentityFromContext_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, uuid.Nil, IdentityFromContext(c))

	c.Set(IdentityContextKey, "not-a-uuid")
	assert.Equal(t, uuid.Nil, IdentityFromContext(c))
}
