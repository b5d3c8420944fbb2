package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saccogov/internal/adapter/http/dto"
)

// GuarantorHandler handles guarantor pledge requests.
type GuarantorHandler struct {
	guarantorUC GuarantorService
}

// NewGuarantorHandler creates a new GuarantorHandler.
func NewGuarantorHandler(guarantorUC GuarantorService) *GuarantorHandler {
	return &GuarantorHandler{guarantorUC: guarantorUC}
}

// Add requests a pledge from a guarantor.
func (h *GuarantorHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req dto.AddPledgeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	pledge, err := h.guarantorUC.AddPledge(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, "failed to add guarantor", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PledgeFromDomain(pledge))
}

// Respond records the guarantor's answer to a pending pledge.
func (h *GuarantorHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req dto.RespondPledgeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	pledge, err := h.guarantorUC.RespondToPledge(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pledgeID"), req.Accept)
	if err != nil {
		writeDomainError(w, r, "failed to respond to pledge", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PledgeFromDomain(pledge))
}

// List returns the loan's pledges with their coverage.
func (h *GuarantorHandler) List(w http.ResponseWriter, r *http.Request) {
	pledges, err := h.guarantorUC.ListByLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to list guarantors", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PledgesFromDomain(pledges))
}
