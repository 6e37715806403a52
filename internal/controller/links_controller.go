package controller

import (
	"net/http"

	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/cassiomorais/cashdesk/pkg/qrpay"
)

// LinksController builds the deposit payment payload for the quoted amount.
type LinksController struct {
	submitter *service.SubmitService
	merchant  qrpay.Merchant
	deeplinks map[string]string
}

func NewLinksController(submitter *service.SubmitService, cfg config.QRConfig) *LinksController {
	return &LinksController{
		submitter: submitter,
		merchant: qrpay.Merchant{
			Account:  cfg.MerchantAccount,
			Name:     cfg.MerchantName,
			City:     cfg.MerchantCity,
			Currency: cfg.Currency,
		},
		deeplinks: cfg.Deeplinks,
	}
}

func (h *LinksController) DepositLinks(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := h.submitter.Quote(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := qrpay.Payload(h.merchant, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{
		Amount:  amount.StringFixed(2),
		Payload: payload,
		Links:   qrpay.Links(h.deeplinks, payload),
	})
}
