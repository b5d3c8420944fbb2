package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
)

// VotingHandler handles committee ballots.
type VotingHandler struct {
	votingUC VotingService
}

// NewVotingHandler creates a new VotingHandler.
func NewVotingHandler(votingUC VotingService) *VotingHandler {
	return &VotingHandler{votingUC: votingUC}
}

// Cast records the caller's ballot in the open session.
func (h *VotingHandler) Cast(w http.ResponseWriter, r *http.Request) {
	var req dto.CastVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	choice, err := domain.ParseVoteChoice(req.Choice)
	if err != nil {
		writeDomainError(w, r, "failed to cast vote", err)
		return
	}

	session, err := h.votingUC.CastVote(r.Context(), chi.URLParam(r, "id"), choice)
	if err != nil {
		writeDomainError(w, r, "failed to cast vote", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VotingSessionFromDomain(session))
}

// Session returns the open session's tally.
func (h *VotingHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.votingUC.GetOpenSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get voting session", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VotingSessionFromDomain(session))
}
