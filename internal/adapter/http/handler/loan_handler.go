package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
)

// LoanHandler handles loan workflow HTTP requests.
type LoanHandler struct {
	loanUC LoanService
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(loanUC LoanService) *LoanHandler {
	return &LoanHandler{loanUC: loanUC}
}

// Create opens a draft application for the caller.
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.CreateDraft(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, r, "failed to create loan", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LoanFromDomain(loan))
}

// Get retrieves a loan by ID.
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get loan", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoanFromDomain(loan))
}

// List lists loans by state, or by borrower. Without filters the caller's own
// applications are returned.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var (
		loans []*domain.LoanApplication
		err   error
	)
	if state := r.URL.Query().Get("state"); state != "" {
		if !domain.LoanState(state).IsValid() {
			writeErrorCode(w, http.StatusBadRequest, "invalid state", "invalid_state", state)
			return
		}
		loans, err = h.loanUC.ListByState(r.Context(), domain.LoanState(state), limit, offset)
	} else {
		borrowerID := r.URL.Query().Get("borrower_id")
		if borrowerID == "" {
			p, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				writeDomainError(w, r, "failed to list loans", domain.ErrUnauthorized)
				return
			}
			borrowerID = p.MemberID
		}
		loans, err = h.loanUC.ListByBorrower(r.Context(), borrowerID, limit, offset)
	}
	if err != nil {
		writeDomainError(w, r, "failed to list loans", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoansFromDomain(loans))
}

// Audit returns the loan's audit trail, oldest first.
func (h *LoanHandler) Audit(w http.ResponseWriter, r *http.Request) {
	records, err := h.loanUC.ListAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to list audit trail", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditTrailFromDomain(records))
}

// PayFee records the application fee for a draft.
func (h *LoanHandler) PayFee(w http.ResponseWriter, r *http.Request) {
	var req dto.PayFeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.PayApplicationFee(r.Context(), chi.URLParam(r, "id"), req.ToUseCaseInput())
	h.respond(w, r, "failed to pay application fee", loan, err)
}

// Submit hands a draft to the loan officer.
func (h *LoanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanUC.Submit(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, "failed to submit loan", loan, err)
}

// StartReview moves a submitted loan under officer review.
func (h *LoanHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	var req dto.CommentRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.StartReview(r.Context(), chi.URLParam(r, "id"), req.Comment)
	h.respond(w, r, "failed to start review", loan, err)
}

// Approve forwards a reviewed loan to the secretary.
func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req dto.CommentRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.Approve(r.Context(), chi.URLParam(r, "id"), req.Comment)
	h.respond(w, r, "failed to approve loan", loan, err)
}

// Reject ends the workflow from any non-terminal state.
func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req dto.RejectRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.respond(w, r, "failed to reject loan", loan, err)
}

// Table schedules the loan for a committee meeting.
func (h *LoanHandler) Table(w http.ResponseWriter, r *http.Request) {
	var req dto.TableRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.Table(r.Context(), chi.URLParam(r, "id"), req.MeetingDate, req.Comment)
	h.respond(w, r, "failed to table loan", loan, err)
}

// OpenVoting opens the committee ballot.
func (h *LoanHandler) OpenVoting(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loanUC.OpenVoting(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, "failed to open voting", loan, err)
}

// CloseVoting closes the ballot and applies its outcome.
func (h *LoanHandler) CloseVoting(w http.ResponseWriter, r *http.Request) {
	var req dto.CloseVotingRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.CloseVoting(r.Context(), chi.URLParam(r, "id"), req.ToUseCaseInput())
	h.respond(w, r, "failed to close voting", loan, err)
}

// FinalApprove records the secretary's decision.
func (h *LoanHandler) FinalApprove(w http.ResponseWriter, r *http.Request) {
	var req dto.CommentRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.FinalApprove(r.Context(), chi.URLParam(r, "id"), req.Comment)
	h.respond(w, r, "failed to approve loan", loan, err)
}

// Disburse releases the funds.
func (h *LoanHandler) Disburse(w http.ResponseWriter, r *http.Request) {
	var req dto.DisburseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	loan, err := h.loanUC.Disburse(r.Context(), chi.URLParam(r, "id"), req.ToUseCaseInput())
	h.respond(w, r, "failed to disburse loan", loan, err)
}

func (h *LoanHandler) respond(w http.ResponseWriter, r *http.Request, message string, loan *domain.LoanApplication, err error) {
	if err != nil {
		writeDomainError(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.LoanFromDomain(loan))
}
