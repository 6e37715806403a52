package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/domain/wizard"
	"github.com/cassiomorais/cashdesk/internal/i18n"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// FlowController serves the deposit and withdraw wizards.
type FlowController struct {
	drafts    *service.DraftService
	verifier  *service.VerificationService
	submitter *service.SubmitService
	poller    *service.StatusPoller
}

func NewFlowController(drafts *service.DraftService, verifier *service.VerificationService, submitter *service.SubmitService, poller *service.StatusPoller) *FlowController {
	return &FlowController{
		drafts:    drafts,
		verifier:  verifier,
		submitter: submitter,
		poller:    poller,
	}
}

func (h *FlowController) Get(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.drafts.Get(r.Context(), owner, flow)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromView(view, i18n.FromContext(r.Context())))
}

func (h *FlowController) Update(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req UpdateDraftRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.drafts.Update(r.Context(), owner, flow, req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromView(view, i18n.FromContext(r.Context())))
}

func (h *FlowController) Advance(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	step, err := wizard.ParseStep(flow, chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.drafts.Advance(r.Context(), owner, flow, step)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if len(res.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, FromStepResult(res, i18n.FromContext(r.Context())))
}

func (h *FlowController) Abandon(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.drafts.Abandon(r.Context(), owner, flow); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify runs the flow's remote check now instead of waiting for the
// debounced one.
func (h *FlowController) Verify(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.verifier.Cancel(owner, flow)
	if _, err := h.verifier.Verify(r.Context(), owner, flow); err != nil && !checkRecorded(err) {
		writeError(w, r, err)
		return
	}

	view, err := h.drafts.Get(r.Context(), owner, flow)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromView(view, i18n.FromContext(r.Context())))
}

func (h *FlowController) Submit(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.submitter.Submit(r.Context(), owner, flow)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{
		RequestID: res.RequestID,
		Amount:    res.Amount.StringFixed(2),
	})
}

// Status performs one status check. A flow with nothing submitted is
// redirected to its entry step.
func (h *FlowController) Status(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	st, err := h.poller.Check(r.Context(), owner, flow)
	if errors.Is(err, domainErrors.ErrNoRequest) {
		writeJSON(w, http.StatusOK, StepResponse{Redirect: string(wizard.First(flow))})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// StatusStream polls the request and pushes every change as a server-sent
// "status" event. The stream ends with an "end" event at a terminal outcome
// or when polling times out; a client disconnect stops polling.
func (h *FlowController) StatusStream(w http.ResponseWriter, r *http.Request) {
	owner, flow, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut a long poll.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("could not clear write deadline")
	}

	started := false
	err = h.poller.Poll(r.Context(), owner, flow, func(st *service.Status) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		return writeEvent(w, rc, "status", st)
	})

	switch {
	case !started && errors.Is(err, domainErrors.ErrNoRequest):
		writeJSON(w, http.StatusOK, StepResponse{Redirect: string(wizard.First(flow))})
	case !started && err != nil:
		writeError(w, r, err)
	case err != nil:
		if r.Context().Err() == nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("status stream ended with error")
		}
	default:
		if err := writeEvent(w, rc, "end", struct{}{}); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("failed to write end event")
		}
	}
}

// checkRecorded reports whether a failed remote check was still written to
// the draft, so the view carries the outcome.
func checkRecorded(err error) bool {
	switch domainErrors.KindOf(err) {
	case domainErrors.KindServerRejection, domainErrors.KindTransport, domainErrors.KindParse:
		return true
	}
	return false
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
