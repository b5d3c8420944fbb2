package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeErrorCode(w, status, message, "", details)
}

func writeErrorCode(w http.ResponseWriter, status int, message, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Message: details,
	})
}

// writeDomainError maps err to a status and stable code. Storage and other
// unexpected failures are logged and reported without details.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := mapDomainError(err)
	if status == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(message)
		writeErrorCode(w, status, message, "internal", "")
		return
	}
	writeErrorCode(w, status, message, domain.ErrorCode(err), err.Error())
}

// statusByError is checked in order; the first match wins.
var statusByError = []struct {
	err    error
	status int
}{
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrInvalidToken, http.StatusUnauthorized},
	{domain.ErrExpiredToken, http.StatusUnauthorized},

	{domain.ErrUnauthorizedTransition, http.StatusForbidden},
	{domain.ErrBorrowerCannotVote, http.StatusForbidden},
	{domain.ErrDepositorMismatch, http.StatusForbidden},

	{domain.ErrLoanNotFound, http.StatusNotFound},
	{domain.ErrPledgeNotFound, http.StatusNotFound},
	{domain.ErrAllocationNotFound, http.StatusNotFound},

	{domain.ErrConcurrentModification, http.StatusConflict},
	{domain.ErrInvalidTransition, http.StatusConflict},
	{domain.ErrNoOpenVotingSession, http.StatusConflict},
	{domain.ErrVotingSessionExists, http.StatusConflict},
	{domain.ErrDuplicateVote, http.StatusConflict},
	{domain.ErrDuplicateGuarantor, http.StatusConflict},
	{domain.ErrPledgeNotPending, http.StatusConflict},
	{domain.ErrFeeAlreadyPaid, http.StatusConflict},
	{domain.ErrLoanClosed, http.StatusConflict},

	{domain.ErrInsufficientGuarantee, http.StatusUnprocessableEntity},
	{domain.ErrEligibilityExceeded, http.StatusUnprocessableEntity},
	{domain.ErrApplicationFeeUnpaid, http.StatusUnprocessableEntity},
	{domain.ErrUnbalancedAllocation, http.StatusUnprocessableEntity},
	{domain.ErrInvalidDestination, http.StatusUnprocessableEntity},
	{domain.ErrUnmappedEvent, http.StatusUnprocessableEntity},

	{domain.ErrSelfGuarantee, http.StatusBadRequest},
	{domain.ErrMissingBankAccount, http.StatusBadRequest},
	{domain.ErrMeetingDateInPast, http.StatusBadRequest},
	{domain.ErrMissingReference, http.StatusBadRequest},
	{domain.ErrInvalidVoteChoice, http.StatusBadRequest},
	{domain.ErrEmptyAllocation, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrAmountTooSmall, http.StatusBadRequest},
	{domain.ErrAmountTooLarge, http.StatusBadRequest},
	{domain.ErrInvalidReference, http.StatusBadRequest},
	{domain.ErrInvalidDuration, http.StatusBadRequest},
	{domain.ErrCommentTooLong, http.StatusBadRequest},
	{domain.ErrInvalidIDFormat, http.StatusBadRequest},
	{domain.ErrInvalidMeetingDay, http.StatusBadRequest},
	{domain.ErrInvalidRole, http.StatusBadRequest},
	{domain.ErrInvalidPaymentMethod, http.StatusBadRequest},
	{domain.ErrMissingMember, http.StatusBadRequest},
	{domain.ErrUnexpectedBankAccount, http.StatusBadRequest},

	{domain.ErrSavingsAccountNotFound, http.StatusUnprocessableEntity},
	{domain.ErrFineNotFound, http.StatusUnprocessableEntity},
	{domain.ErrProductNotFound, http.StatusUnprocessableEntity},
	{domain.ErrShareCapitalNotFound, http.StatusUnprocessableEntity},
	{domain.ErrBankAccountNotFound, http.StatusUnprocessableEntity},
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	for _, s := range statusByError {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON body into v.
func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalBody is decodeBody for endpoints whose body may be omitted.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// pagination reads limit and offset, clamped to sane bounds.
func pagination(r *http.Request) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
