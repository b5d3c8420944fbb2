package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Loan workflow metrics
	LoansCreated       prometheus.Counter
	LoanTransitions    *prometheus.CounterVec
	TransitionErrors   *prometheus.CounterVec
	TransitionDuration prometheus.Histogram
	Disbursements      prometheus.Counter
	DisbursedAmount    prometheus.Histogram

	// Voting metrics
	VotesCast *prometheus.CounterVec

	// Allocation metrics
	AllocationsPosted  *prometheus.CounterVec
	AllocationAmount   prometheus.Histogram
	AllocationDuration prometheus.Histogram
	AllocationErrors   *prometheus.CounterVec

	// Posting gateway metrics
	JournalEntries *prometheus.CounterVec
	PostingErrors  *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec

	// Storage metrics
	DBRetries *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		LoansCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "saccogov_loans_created_total",
			Help: "Total number of loan applications created",
		}),
		LoanTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_loan_transitions_total",
				Help: "Applied workflow commands by action and resulting state",
			},
			[]string{"action", "state"},
		),
		TransitionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_loan_transition_errors_total",
				Help: "Rejected workflow commands by action and error code",
			},
			[]string{"action", "code"},
		),
		TransitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "saccogov_loan_transition_duration_seconds",
			Help:    "Duration of workflow commands",
			Buckets: prometheus.DefBuckets,
		}),
		Disbursements: f.NewCounter(prometheus.CounterOpts{
			Name: "saccogov_disbursements_total",
			Help: "Total number of loans disbursed",
		}),
		DisbursedAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "saccogov_disbursed_amount",
			Help:    "Disbursed principal amounts",
			Buckets: []float64{1000, 10000, 50000, 100000, 500000, 1000000, 5000000},
		}),

		VotesCast: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_votes_cast_total",
				Help: "Committee ballots by choice",
			},
			[]string{"choice"},
		),

		AllocationsPosted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_allocations_posted_total",
				Help: "Accepted allocations by direction",
			},
			[]string{"direction"},
		),
		AllocationAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "saccogov_allocation_amount",
			Help:    "Allocation totals",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		AllocationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "saccogov_allocation_duration_seconds",
			Help:    "Duration of allocation operations",
			Buckets: prometheus.DefBuckets,
		}),
		AllocationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_allocation_errors_total",
				Help: "Rejected allocations by error code",
			},
			[]string{"code"},
		),

		JournalEntries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_journal_entries_total",
				Help: "Posted journal entries by event",
			},
			[]string{"event"},
		),
		PostingErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_posting_errors_total",
				Help: "Failed postings by event and error code",
			},
			[]string{"event", "code"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saccogov_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RedisOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_cache_lookups_total",
				Help: "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),

		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_outbox_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),

		DBRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saccogov_db_retries_total",
				Help: "Transactions retried after a transient postgres error, by SQLSTATE",
			},
			[]string{"code"},
		),
	}
}
