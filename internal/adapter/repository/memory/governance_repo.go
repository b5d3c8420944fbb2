package memory

import (
	"context"
	"sort"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// GuarantorRepository implements usecase.GuarantorRepository.
type GuarantorRepository struct {
	store *Store
}

// NewGuarantorRepository creates a new GuarantorRepository.
func NewGuarantorRepository(store *Store) *GuarantorRepository {
	return &GuarantorRepository{store: store}
}

// Create inserts a pledge; one per guarantor per loan.
func (r *GuarantorRepository) Create(ctx context.Context, tx usecase.Transaction, pledge *domain.GuarantorPledge) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	for _, p := range st.pledges {
		if p.LoanID == pledge.LoanID && p.GuarantorID == pledge.GuarantorID {
			return domain.ErrDuplicateGuarantor
		}
	}
	p := *pledge
	st.pledges[p.ID] = &p
	return nil
}

// GetByIDForUpdate retrieves a pledge within the transaction.
func (r *GuarantorRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.GuarantorPledge, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	p, ok := st.pledges[id]
	if !ok {
		return nil, domain.ErrPledgeNotFound
	}
	c := *p
	return &c, nil
}

// Update persists a pledge response.
func (r *GuarantorRepository) Update(ctx context.Context, tx usecase.Transaction, pledge *domain.GuarantorPledge) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	if _, ok := st.pledges[pledge.ID]; !ok {
		return domain.ErrPledgeNotFound
	}
	p := *pledge
	st.pledges[p.ID] = &p
	return nil
}

// ListByLoan lists committed pledges for a loan in creation order.
func (r *GuarantorRepository) ListByLoan(ctx context.Context, loanID string) ([]*domain.GuarantorPledge, error) {
	var pledges []*domain.GuarantorPledge
	err := r.store.read(func(st *state) error {
		pledges = pledgesFor(st, loanID)
		return nil
	})
	return pledges, err
}

// ListByLoanTx lists pledges for a loan within the transaction.
func (r *GuarantorRepository) ListByLoanTx(ctx context.Context, tx usecase.Transaction, loanID string) ([]*domain.GuarantorPledge, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	return pledgesFor(st, loanID), nil
}

func pledgesFor(st *state, loanID string) []*domain.GuarantorPledge {
	pledges := []*domain.GuarantorPledge{}
	for _, p := range st.pledges {
		if p.LoanID == loanID {
			c := *p
			pledges = append(pledges, &c)
		}
	}
	sort.Slice(pledges, func(i, j int) bool {
		if pledges[i].CreatedAt.Equal(pledges[j].CreatedAt) {
			return pledges[i].ID < pledges[j].ID
		}
		return pledges[i].CreatedAt.Before(pledges[j].CreatedAt)
	})
	return pledges
}

// VotingSessionRepository implements usecase.VotingSessionRepository.
type VotingSessionRepository struct {
	store *Store
}

// NewVotingSessionRepository creates a new VotingSessionRepository.
func NewVotingSessionRepository(store *Store) *VotingSessionRepository {
	return &VotingSessionRepository{store: store}
}

// Create opens a session; at most one per loan.
func (r *VotingSessionRepository) Create(ctx context.Context, tx usecase.Transaction, session *domain.VotingSession) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	if _, open := st.sessions[session.LoanID]; open {
		return domain.ErrVotingSessionExists
	}
	st.sessions[session.LoanID] = copySession(session)
	return nil
}

// GetOpenByLoan returns the committed open session for a loan.
func (r *VotingSessionRepository) GetOpenByLoan(ctx context.Context, loanID string) (*domain.VotingSession, error) {
	var session *domain.VotingSession
	err := r.store.read(func(st *state) error {
		s, ok := st.sessions[loanID]
		if !ok {
			return domain.ErrNoOpenVotingSession
		}
		session = copySession(s)
		return nil
	})
	return session, err
}

// GetOpenByLoanForUpdate returns the open session within the transaction.
func (r *VotingSessionRepository) GetOpenByLoanForUpdate(ctx context.Context, tx usecase.Transaction, loanID string) (*domain.VotingSession, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	s, ok := st.sessions[loanID]
	if !ok {
		return nil, domain.ErrNoOpenVotingSession
	}
	return copySession(s), nil
}

// SaveVote stores or replaces one ballot.
func (r *VotingSessionRepository) SaveVote(ctx context.Context, tx usecase.Transaction, sessionID string, vote domain.Vote) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	for _, s := range st.sessions {
		if s.ID == sessionID {
			s.Votes[vote.VoterID] = vote
			return nil
		}
	}
	return domain.ErrNoOpenVotingSession
}

// Close moves the session out of the open set.
func (r *VotingSessionRepository) Close(ctx context.Context, tx usecase.Transaction, session *domain.VotingSession) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	open, ok := st.sessions[session.LoanID]
	if !ok || open.ID != session.ID {
		return domain.ErrNoOpenVotingSession
	}
	delete(st.sessions, session.LoanID)
	st.closed = append(st.closed, copySession(session))
	return nil
}
