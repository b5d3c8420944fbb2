package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

const pledgeColumns = `id, loan_id, guarantor_id, amount, status, created_at, responded_at`

const createPledge = `INSERT INTO guarantor_pledges (` + pledgeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

const getPledgeForUpdate = `SELECT ` + pledgeColumns + ` FROM guarantor_pledges WHERE id = $1 FOR UPDATE`

const updatePledge = `UPDATE guarantor_pledges SET status = $2, responded_at = $3 WHERE id = $1`

const listPledgesByLoan = `SELECT ` + pledgeColumns + ` FROM guarantor_pledges WHERE loan_id = $1 ORDER BY created_at, id`

const listPledgesByLoanForUpdate = listPledgesByLoan + ` FOR UPDATE`

// GuarantorRepository implements usecase.GuarantorRepository.
type GuarantorRepository struct {
	db DBTX
}

// NewGuarantorRepository creates a new GuarantorRepository.
func NewGuarantorRepository(db DBTX) *GuarantorRepository {
	return &GuarantorRepository{db: db}
}

// Create inserts a pledge; the (loan, guarantor) pair is unique.
func (r *GuarantorRepository) Create(ctx context.Context, tx usecase.Transaction, pledge *domain.GuarantorPledge) error {
	_, err := txOf(tx).Exec(ctx, createPledge,
		pledge.ID,
		pledge.LoanID,
		pledge.GuarantorID,
		decimalToNumeric(pledge.Amount),
		string(pledge.Status),
		timeToPgTimestamptz(pledge.CreatedAt),
		optionalTimestamptz(pledge.RespondedAt),
	)
	if uniqueViolation(err, "guarantor_pledges_loan_guarantor") {
		return domain.ErrDuplicateGuarantor
	}
	return err
}

// GetByIDForUpdate locks a pledge.
func (r *GuarantorRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.GuarantorPledge, error) {
	pledge, err := scanPledge(txOf(tx).QueryRow(ctx, getPledgeForUpdate, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPledgeNotFound
	}
	return pledge, err
}

// Update stores the guarantor's answer.
func (r *GuarantorRepository) Update(ctx context.Context, tx usecase.Transaction, pledge *domain.GuarantorPledge) error {
	tag, err := txOf(tx).Exec(ctx, updatePledge, pledge.ID, string(pledge.Status), optionalTimestamptz(pledge.RespondedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPledgeNotFound
	}
	return nil
}

// ListByLoan returns a loan's committed pledges.
func (r *GuarantorRepository) ListByLoan(ctx context.Context, loanID string) ([]*domain.GuarantorPledge, error) {
	return listPledges(ctx, r.db, listPledgesByLoan, loanID)
}

// ListByLoanTx returns a loan's pledges locked within tx.
func (r *GuarantorRepository) ListByLoanTx(ctx context.Context, tx usecase.Transaction, loanID string) ([]*domain.GuarantorPledge, error) {
	return listPledges(ctx, txOf(tx), listPledgesByLoanForUpdate, loanID)
}

func listPledges(ctx context.Context, db DBTX, query, loanID string) ([]*domain.GuarantorPledge, error) {
	rows, err := db.Query(ctx, query, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pledges := []*domain.GuarantorPledge{}
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		pledges = append(pledges, p)
	}
	return pledges, rows.Err()
}

func scanPledge(row pgx.Row) (*domain.GuarantorPledge, error) {
	var (
		p                      domain.GuarantorPledge
		amount                 pgtype.Numeric
		status                 string
		createdAt, respondedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.LoanID, &p.GuarantorID, &amount, &status, &createdAt, &respondedAt); err != nil {
		return nil, err
	}
	p.Amount = numericToDecimal(amount)
	p.Status = domain.PledgeStatus(status)
	p.CreatedAt = createdAt.Time
	p.RespondedAt = timestamptzToOptional(respondedAt)
	return &p, nil
}

const createSession = `INSERT INTO voting_sessions (id, loan_id, opened_by, opened_at) VALUES ($1, $2, $3, $4)`

const getOpenSession = `SELECT id, loan_id, opened_by, opened_at FROM voting_sessions
WHERE loan_id = $1 AND closed_at IS NULL`

const getOpenSessionForUpdate = getOpenSession + ` FOR UPDATE`

const listVotes = `SELECT voter_id, choice, cast_at FROM votes WHERE session_id = $1`

const upsertVote = `INSERT INTO votes (session_id, voter_id, choice, cast_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, voter_id) DO UPDATE SET choice = EXCLUDED.choice, cast_at = EXCLUDED.cast_at`

const closeSession = `UPDATE voting_sessions SET closed_by = $2, closed_at = $3, result = $4
WHERE id = $1 AND closed_at IS NULL`

// VotingSessionRepository implements usecase.VotingSessionRepository.
type VotingSessionRepository struct {
	db DBTX
}

// NewVotingSessionRepository creates a new VotingSessionRepository.
func NewVotingSessionRepository(db DBTX) *VotingSessionRepository {
	return &VotingSessionRepository{db: db}
}

// Create opens a session; a partial unique index allows one open session per loan.
func (r *VotingSessionRepository) Create(ctx context.Context, tx usecase.Transaction, session *domain.VotingSession) error {
	_, err := txOf(tx).Exec(ctx, createSession, session.ID, session.LoanID, session.OpenedBy, timeToPgTimestamptz(session.OpenedAt))
	if uniqueViolation(err, "idx_voting_sessions_open") {
		return domain.ErrVotingSessionExists
	}
	return err
}

// GetOpenByLoan returns the open session with its ballots.
func (r *VotingSessionRepository) GetOpenByLoan(ctx context.Context, loanID string) (*domain.VotingSession, error) {
	return loadSession(ctx, r.db, getOpenSession, loanID)
}

// GetOpenByLoanForUpdate locks the open session.
func (r *VotingSessionRepository) GetOpenByLoanForUpdate(ctx context.Context, tx usecase.Transaction, loanID string) (*domain.VotingSession, error) {
	return loadSession(ctx, txOf(tx), getOpenSessionForUpdate, loanID)
}

// SaveVote stores a ballot, replacing the voter's previous one.
func (r *VotingSessionRepository) SaveVote(ctx context.Context, tx usecase.Transaction, sessionID string, vote domain.Vote) error {
	_, err := txOf(tx).Exec(ctx, upsertVote, sessionID, vote.VoterID, string(vote.Choice), timeToPgTimestamptz(vote.CastAt))
	return err
}

// Close stamps the session closed.
func (r *VotingSessionRepository) Close(ctx context.Context, tx usecase.Transaction, session *domain.VotingSession) error {
	tag, err := txOf(tx).Exec(ctx, closeSession, session.ID, session.ClosedBy, optionalTimestamptz(session.ClosedAt), string(session.Result))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoOpenVotingSession
	}
	return nil
}

func loadSession(ctx context.Context, db DBTX, query, loanID string) (*domain.VotingSession, error) {
	var (
		s        domain.VotingSession
		openedAt pgtype.Timestamptz
	)
	err := db.QueryRow(ctx, query, loanID).Scan(&s.ID, &s.LoanID, &s.OpenedBy, &openedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoOpenVotingSession
		}
		return nil, err
	}
	s.OpenedAt = openedAt.Time
	s.Votes = make(map[string]domain.Vote)

	rows, err := db.Query(ctx, listVotes, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v      domain.Vote
			choice string
			castAt pgtype.Timestamptz
		)
		if err := rows.Scan(&v.VoterID, &choice, &castAt); err != nil {
			return nil, err
		}
		v.Choice = domain.VoteChoice(choice)
		v.CastAt = castAt.Time
		s.Votes[v.VoterID] = v
	}

	return &s, rows.Err()
}
