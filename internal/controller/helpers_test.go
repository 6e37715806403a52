package controller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"message": "hello"},
			expectedBody: `{"message":"hello"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "validation_error"},
			expectedBody: `{"error":"bad request","code":"validation_error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"validation", domainErrors.NewValidationError("amount", "bad"), http.StatusBadRequest, "validation_error"},
		{"unknown flow", domainErrors.ErrUnknownFlow, http.StatusBadRequest, "validation_error"},
		{"precondition", &domainErrors.PreconditionError{Message: "no"}, http.StatusUnprocessableEntity, "precondition_error"},
		{"transport", &domainErrors.TransportError{Op: "payment", Err: fmt.Errorf("dial")}, http.StatusBadGateway, "transport_error"},
		{"timeout", &domainErrors.TransportError{Op: "payment", Err: domainErrors.ErrUpstreamTimeout}, http.StatusGatewayTimeout, "transport_error"},
		{"breaker open", &domainErrors.TransportError{Op: "payment", Err: domainErrors.ErrUpstreamUnavailable}, http.StatusServiceUnavailable, "transport_error"},
		{"rejection", &domainErrors.ServerRejectionError{Op: "payment", StatusCode: 400}, http.StatusUnprocessableEntity, "server_rejection"},
		{"flow disabled", domainErrors.ErrFlowDisabled, http.StatusUnprocessableEntity, "server_rejection"},
		{"already submitted", domainErrors.ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
		{"in flight", domainErrors.ErrSubmissionInFlight, http.StatusConflict, "already_submitted"},
		{"parse", &domainErrors.ParseError{Op: "requests", Err: fmt.Errorf("eof")}, http.StatusBadGateway, "parse_error"},
		{"no draft", domainErrors.ErrDraftNotFound, http.StatusNotFound, "not_found"},
		{"unauthorized", domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			writeError(w, r, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.expectedCode, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestWriteError_LocalizesStepKinds(t *testing.T) {
	err := &domainErrors.ValidationError{
		Field: "draft",
		Kinds: []string{string(wizard.ErrAmountTooLow), string(wizard.ErrBankRequired)},
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(i18n.WithLocale(context.Background(), i18n.KY))
	w := httptest.NewRecorder()

	writeError(w, r, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.Len(t, resp.Fields, 2)
	assert.Equal(t, string(wizard.ErrAmountTooLow), resp.Fields[0].Kind)
	assert.Equal(t, i18n.StepMessage(i18n.KY, wizard.ErrAmountTooLow), resp.Fields[0].Message)
	assert.Equal(t, resp.Fields[0].Message, resp.Error)
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"bookmaker":"1xbet","amount":"500"}`, false},
		{"empty object", `{}`, false},
		{"malformed", `{"bookmaker":`, true},
		{"unknown field", `{"nickname":"x"}`, true},
		{"too long", `{"account_id":"` + strings.Repeat("9", 40) + `"}`, true},
		{"qr not an image", `{"qr_photo":"https://example.com/a.png"}`, true},
		{"qr data uri", `{"qr_photo":"data:image/png;base64,iVBORw0KGgo="}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			var req UpdateDraftRequest

			err := decodeAndValidate(w, r, &req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domainErrors.KindValidation, domainErrors.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCaller_RequiresIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, err := caller(r)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthorized)
}
