package handler

import (
	"net/http"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// JournalHandler exposes the general ledger's read side.
type JournalHandler struct {
	journalUC JournalService
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(journalUC JournalService) *JournalHandler {
	return &JournalHandler{journalUC: journalUC}
}

// List returns entries for ?source_ref= in posting order, or for ?event=
// newest first. One of the two is required.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		entries []*domain.JournalEntry
		err     error
	)
	switch {
	case q.Get("source_ref") != "":
		entries, err = h.journalUC.ListBySource(r.Context(), q.Get("source_ref"))
	case q.Get("event") != "":
		limit, offset := pagination(r)
		entries, err = h.journalUC.ListByEvent(r.Context(), usecase.ListByEventInput{
			EventName: q.Get("event"),
			Limit:     limit,
			Offset:    offset,
		})
	default:
		writeError(w, http.StatusBadRequest, "missing filter", "source_ref or event is required")
		return
	}
	if err != nil {
		writeDomainError(w, r, "failed to list journal entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.JournalEntriesFromDomain(entries))
}

// Mappings lists the configured event to account mappings.
func (h *JournalHandler) Mappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.journalUC.ListMappings(r.Context())
	if err != nil {
		writeDomainError(w, r, "failed to list mappings", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.GLMappingsFromDomain(mappings))
}

// Consistency reports whether total debits equal total credits.
func (h *JournalHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	balanced, err := h.journalUC.CheckConsistency(r.Context())
	if err != nil {
		writeDomainError(w, r, "failed to check consistency", err)
		return
	}

	status := http.StatusOK
	if !balanced {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ConsistencyResponse{Balanced: balanced})
}
