package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadledger/pkg/domain"
	"github.com/jordanlanch/leadledger/pkg/models"
)

// newContext creates an echo.Context backed by an httptest.NewRecorder.
func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// captureLog redirects the standard logger to a buffer for the duration of fn
// and returns everything that was logged.
func captureLog(fn func()) string {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	fn()
	return buf.String()
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:       "Unauthenticated → 401",
			err:        domain.NewUnauthenticatedError(),
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized",
		},
		{
			name:        "PermissionDenied → 403",
			err:         domain.NewPermissionDeniedError("insufficient permissions to assign leads"),
			wantStatus:  http.StatusForbidden,
			wantError:   "forbidden",
			wantMessage: "insufficient permissions to assign leads",
		},
		{
			name:        "NotFound → 404",
			err:         domain.NewNotFoundError("lead"),
			wantStatus:  http.StatusNotFound,
			wantError:   "not_found",
			wantMessage: "lead not found",
		},
		{
			name:        "InvalidState → 400",
			err:         domain.NewInvalidStateError("Lead is not currently assigned"),
			wantStatus:  http.StatusBadRequest,
			wantError:   "bad_request",
			wantMessage: "Lead is not currently assigned",
		},
		{
			name:        "wrapped domain error keeps its status",
			err:         fmt.Errorf("handler: %w", domain.NewNotFoundError("worker")),
			wantStatus:  http.StatusNotFound,
			wantError:   "not_found",
			wantMessage: "worker not found",
		},
		{
			name:       "Infra → 500",
			err:        domain.NewInfraError("assign lead", errors.New("pq: deadlock detected")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
		{
			name:       "plain error → 500",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodPost, "/api/v1/lead-assignment/assign")
			captureLog(func() {
				assert.NoError(t, FromDomain(c, tt.err))
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			resp := parseBody(t, rec)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.NotEmpty(t, resp.Message)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, resp.Message)
			}
		})
	}
}

func TestInternalError(t *testing.T) {
	t.Run("Success - cause is logged but not returned", func(t *testing.T) {
		internalMsg := "pq: relation \"leads\" does not exist"
		c, rec := newContext(http.MethodGet, "/api/v1/lead-assignment/team-workload")

		logged := captureLog(func() {
			_ = InternalError(c, errors.New(internalMsg))
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pq:")
		assert.Contains(t, logged, "[INTERNAL ERROR]")
		assert.Contains(t, logged, internalMsg)
		assert.Contains(t, logged, "/api/v1/lead-assignment/team-workload")
	})
}

func TestValidationError(t *testing.T) {
	t.Run("Success - details stay server side", func(t *testing.T) {
		internalMsg := "Key: 'AssignLeadRequest.Notes' Error:Field validation for 'Notes' failed on the 'max' tag"
		c, rec := newContext(http.MethodPost, "/api/v1/lead-assignment/assign")

		logged := captureLog(func() {
			_ = ValidationError(c, errors.New(internalMsg))
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", parseBody(t, rec).Error)
		assert.NotContains(t, rec.Body.String(), "AssignLeadRequest")
		assert.Contains(t, logged, "[VALIDATION ERROR]")
		assert.Contains(t, logged, internalMsg)
	})
}

func TestUnauthorizedError(t *testing.T) {
	t.Run("Success - reason is not exposed", func(t *testing.T) {
		reason := "token signature mismatch: expected hmac-sha256"
		c, rec := newContext(http.MethodGet, "/api/v1/lead-assignment/my-leads")
		_ = UnauthorizedError(c, reason)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotContains(t, rec.Body.String(), "hmac")
	})
}

func TestForbiddenAndNotFound_DefaultMessages(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")
	_ = ForbiddenError(c, "")
	assert.Equal(t, "You do not have permission to access this resource.", parseBody(t, rec).Message)

	c, rec = newContext(http.MethodGet, "/")
	_ = NotFoundError(c, "")
	assert.Equal(t, "The requested resource was not found.", parseBody(t, rec).Message)
}
