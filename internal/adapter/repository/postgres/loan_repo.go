package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

const loanColumns = `id, loan_number, borrower_id, product_id, savings_account_id, principal,
	outstanding_balance, duration_weeks, state, fee_paid, meeting_date, votes_yes, votes_no,
	vote_outcome, decision_comments, rejection_reason, disbursement_ref, disbursement_method,
	disbursed_by, disbursed_at, closed, version, created_at, updated_at`

const createLoan = `INSERT INTO loan_applications (` + loanColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

const getLoanByID = `SELECT ` + loanColumns + ` FROM loan_applications WHERE id = $1`

const getLoanByIDForUpdate = getLoanByID + ` FOR UPDATE`

// updateLoan bumps the version only when the caller holds the current one.
const updateLoan = `UPDATE loan_applications SET
	outstanding_balance = $3, state = $4, fee_paid = $5, meeting_date = $6, votes_yes = $7,
	votes_no = $8, vote_outcome = $9, decision_comments = $10, rejection_reason = $11,
	disbursement_ref = $12, disbursement_method = $13, disbursed_by = $14, disbursed_at = $15,
	closed = $16, updated_at = $17, version = version + 1
WHERE id = $1 AND version = $2`

const listLoansByBorrower = `SELECT ` + loanColumns + ` FROM loan_applications
WHERE borrower_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

const listLoansByState = `SELECT ` + loanColumns + ` FROM loan_applications
WHERE state = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`

const appendAudit = `INSERT INTO loan_audit (id, loan_id, action, from_state, to_state, actor_id, actor_role, comment, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const listAudit = `SELECT id, loan_id, action, from_state, to_state, actor_id, actor_role, comment, created_at
FROM loan_audit WHERE loan_id = $1 ORDER BY created_at, id`

// LoanRepository implements usecase.LoanRepository.
type LoanRepository struct {
	db DBTX
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(db DBTX) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create inserts a new loan application.
func (r *LoanRepository) Create(ctx context.Context, tx usecase.Transaction, loan *domain.LoanApplication) error {
	_, err := txOf(tx).Exec(ctx, createLoan,
		loan.ID,
		loan.LoanNumber,
		loan.BorrowerID,
		loan.ProductID,
		loan.SavingsAccountID,
		decimalToNumeric(loan.Principal),
		decimalToNumeric(loan.OutstandingBalance),
		loan.DurationWeeks,
		string(loan.State),
		loan.FeePaid,
		optionalTimestamptz(loan.MeetingDate),
		loan.VotesYes,
		loan.VotesNo,
		string(loan.VoteOutcome),
		loan.DecisionComments,
		loan.RejectionReason,
		loan.DisbursementRef,
		string(loan.DisbursementMethod),
		loan.DisbursedBy,
		optionalTimestamptz(loan.DisbursedAt),
		loan.Closed,
		loan.Version,
		timeToPgTimestamptz(loan.CreatedAt),
		timeToPgTimestamptz(loan.UpdatedAt),
	)
	if uniqueViolation(err, "") {
		return domain.ErrConcurrentModification
	}
	return err
}

// GetByID retrieves a loan by ID.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanApplication, error) {
	return scanLoan(r.db.QueryRow(ctx, getLoanByID, id))
}

// GetByIDForUpdate retrieves a loan by ID with a FOR UPDATE lock.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.LoanApplication, error) {
	return scanLoan(txOf(tx).QueryRow(ctx, getLoanByIDForUpdate, id))
}

// Update persists loan under optimistic locking and advances loan.Version.
func (r *LoanRepository) Update(ctx context.Context, tx usecase.Transaction, loan *domain.LoanApplication) error {
	tag, err := txOf(tx).Exec(ctx, updateLoan,
		loan.ID,
		loan.Version,
		decimalToNumeric(loan.OutstandingBalance),
		string(loan.State),
		loan.FeePaid,
		optionalTimestamptz(loan.MeetingDate),
		loan.VotesYes,
		loan.VotesNo,
		string(loan.VoteOutcome),
		loan.DecisionComments,
		loan.RejectionReason,
		loan.DisbursementRef,
		string(loan.DisbursementMethod),
		loan.DisbursedBy,
		optionalTimestamptz(loan.DisbursedAt),
		loan.Closed,
		timeToPgTimestamptz(loan.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}

	loan.Version++
	return nil
}

// ListByBorrower lists a member's applications, newest first.
func (r *LoanRepository) ListByBorrower(ctx context.Context, borrowerID string, limit, offset int) ([]*domain.LoanApplication, error) {
	return r.list(ctx, listLoansByBorrower, borrowerID, limit, offset)
}

// ListByState lists applications waiting in state, oldest first.
func (r *LoanRepository) ListByState(ctx context.Context, state domain.LoanState, limit, offset int) ([]*domain.LoanApplication, error) {
	return r.list(ctx, listLoansByState, string(state), limit, offset)
}

func (r *LoanRepository) list(ctx context.Context, query, key string, limit, offset int) ([]*domain.LoanApplication, error) {
	rows, err := r.db.Query(ctx, query, key, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := []*domain.LoanApplication{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}

	return loans, rows.Err()
}

// AppendAudit records a workflow step.
func (r *LoanRepository) AppendAudit(ctx context.Context, tx usecase.Transaction, record *domain.AuditRecord) error {
	_, err := txOf(tx).Exec(ctx, appendAudit,
		record.ID,
		record.LoanID,
		string(record.Action),
		string(record.FromState),
		string(record.ToState),
		record.ActorID,
		string(record.ActorRole),
		record.Comment,
		timeToPgTimestamptz(record.CreatedAt),
	)
	return err
}

// ListAudit returns a loan's history in order.
func (r *LoanRepository) ListAudit(ctx context.Context, loanID string) ([]domain.AuditRecord, error) {
	rows, err := r.db.Query(ctx, listAudit, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.AuditRecord{}
	for rows.Next() {
		var (
			rec                                 domain.AuditRecord
			action, fromState, toState, roleStr string
			createdAt                           pgtype.Timestamptz
		)
		if err := rows.Scan(&rec.ID, &rec.LoanID, &action, &fromState, &toState, &rec.ActorID, &roleStr, &rec.Comment, &createdAt); err != nil {
			return nil, err
		}
		rec.Action = domain.Action(action)
		rec.FromState = domain.LoanState(fromState)
		rec.ToState = domain.LoanState(toState)
		rec.ActorRole = domain.Role(roleStr)
		rec.CreatedAt = createdAt.Time
		records = append(records, rec)
	}

	return records, rows.Err()
}

func scanLoan(row pgx.Row) (*domain.LoanApplication, error) {
	var (
		loan                     domain.LoanApplication
		principal, outstanding   pgtype.Numeric
		state, outcome, method   string
		meetingDate, disbursedAt pgtype.Timestamptz
		createdAt, updatedAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&loan.ID,
		&loan.LoanNumber,
		&loan.BorrowerID,
		&loan.ProductID,
		&loan.SavingsAccountID,
		&principal,
		&outstanding,
		&loan.DurationWeeks,
		&state,
		&loan.FeePaid,
		&meetingDate,
		&loan.VotesYes,
		&loan.VotesNo,
		&outcome,
		&loan.DecisionComments,
		&loan.RejectionReason,
		&loan.DisbursementRef,
		&method,
		&loan.DisbursedBy,
		&disbursedAt,
		&loan.Closed,
		&loan.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}

	loan.Principal = numericToDecimal(principal)
	loan.OutstandingBalance = numericToDecimal(outstanding)
	loan.State = domain.LoanState(state)
	loan.VoteOutcome = domain.VoteOutcome(outcome)
	loan.DisbursementMethod = domain.PaymentMethod(method)
	loan.MeetingDate = timestamptzToOptional(meetingDate)
	loan.DisbursedAt = timestamptzToOptional(disbursedAt)
	loan.CreatedAt = createdAt.Time
	loan.UpdatedAt = updatedAt.Time

	return &loan, nil
}
