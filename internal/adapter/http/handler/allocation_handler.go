package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saccogov/internal/adapter/http/dto"
)

// AllocationHandler handles deposit allocation requests.
type AllocationHandler struct {
	allocationUC AllocationService
}

// NewAllocationHandler creates a new AllocationHandler.
func NewAllocationHandler(allocationUC AllocationService) *AllocationHandler {
	return &AllocationHandler{allocationUC: allocationUC}
}

// Create validates and posts a multi-destination deposit atomically.
func (h *AllocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAllocationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	allocationReq, err := req.ToDomain()
	if err != nil {
		writeDomainError(w, r, "invalid allocation", err)
		return
	}

	allocation, err := h.allocationUC.Allocate(r.Context(), allocationReq)
	if err != nil {
		writeDomainError(w, r, "failed to allocate deposit", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AllocationFromDomain(allocation))
}

// Get retrieves an allocation by its transaction reference.
func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	allocation, err := h.allocationUC.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeDomainError(w, r, "failed to get allocation", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AllocationFromDomain(allocation))
}

// ListByMember lists a member's allocations, newest first.
func (h *AllocationHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	allocations, err := h.allocationUC.ListByMember(r.Context(), chi.URLParam(r, "memberID"), limit, offset)
	if err != nil {
		writeDomainError(w, r, "failed to list allocations", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AllocationsFromDomain(allocations))
}
