package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/i18n"
	"github.com/cassiomorais/cashdesk/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// maxBodyBytes bounds request bodies; the QR photo is the largest field.
const maxBodyBytes = 5 << 20

var kindStatus = map[domainErrors.Kind]int{
	domainErrors.KindValidation:       http.StatusBadRequest,
	domainErrors.KindPrecondition:     http.StatusUnprocessableEntity,
	domainErrors.KindTransport:        http.StatusBadGateway,
	domainErrors.KindServerRejection:  http.StatusUnprocessableEntity,
	domainErrors.KindAlreadySubmitted: http.StatusConflict,
	domainErrors.KindParse:            http.StatusBadGateway,
	domainErrors.KindNotFound:         http.StatusNotFound,
	domainErrors.KindUnauthorized:     http.StatusUnauthorized,
	domainErrors.KindInternal:         http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError classifies err, then localizes the message for the request.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domainErrors.KindOf(err)
	loc := i18n.FromContext(r.Context())
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, domainErrors.ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domainErrors.ErrUpstreamUnavailable):
		status = http.StatusServiceUnavailable
	}

	resp := ErrorResponse{Code: string(kind), Error: i18n.Message(loc, err)}

	var vErr *domainErrors.ValidationError
	if errors.As(err, &vErr) && len(vErr.Kinds) > 0 {
		resp.Fields = stepErrors(vErr.Kinds, loc)
		resp.Error = resp.Fields[0].Message
	}

	if kind == domainErrors.KindInternal {
		logger := zerolog.Ctx(r.Context())
		if logger.GetLevel() == zerolog.Disabled {
			logger = &log.Logger
		}
		logger.Error().Err(err).Msg("unhandled error in handler")
	}
	writeJSON(w, status, resp)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// caller returns the owner and flow of a /flows/{flow} request.
func caller(r *http.Request) (string, draft.Flow, error) {
	owner, ok := identity.UserID(r.Context())
	if !ok {
		return "", "", domainErrors.ErrUnauthorized
	}
	flow, err := draft.ParseFlow(chi.URLParam(r, "flow"))
	if err != nil {
		return "", "", err
	}
	return owner, flow, nil
}

func ownerOf(r *http.Request) (string, error) {
	owner, ok := identity.UserID(r.Context())
	if !ok {
		return "", domainErrors.ErrUnauthorized
	}
	return owner, nil
}
