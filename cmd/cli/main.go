package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/auth"
	"github.com/iho/saccogov/internal/infrastructure/config"
	"github.com/iho/saccogov/internal/infrastructure/postgres"
)

// apiOptions holds the flags shared by every API command.
type apiOptions struct {
	baseURL  string
	timeout  time.Duration
	token    string
	memberID string
	role     string
}

// jwtGenerate is swapped out in tests.
var jwtGenerate = func(secret string, ttl time.Duration, p domain.Principal) (string, error) {
	return auth.NewJWTManager(secret, ttl).Generate(p)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &apiOptions{}

	rootCmd := &cobra.Command{
		Use:           "saccogov-cli",
		Short:         "SACCO loan governance CLI",
		Long:          `A command line interface for operating the SACCO loan governance API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SACCOGOV_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.memberID, "member", "", "Member id sent as X-Member-ID when no token is set")
	rootCmd.PersistentFlags().StringVar(&opts.role, "role", "", "Role sent as X-Role when no token is set")

	rootCmd.AddCommand(loanCmd(opts), journalCmd(opts), migrateCmd(), tokenCmd())
	return rootCmd
}

func loanCmd(opts *apiOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loan",
		Short: "Loan application operations",
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a loan application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loan dto.LoanResponse
			if err := opts.get("/api/v1/loans/"+url.PathEscape(args[0]), &loan); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), loan)
		},
	}

	auditCmd := &cobra.Command{
		Use:   "audit <id>",
		Short: "Print a loan's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var trail []*dto.AuditRecordResponse
			if err := opts.get("/api/v1/loans/"+url.PathEscape(args[0])+"/audit", &trail); err != nil {
				return err
			}
			return printAuditTrail(cmd.OutOrStdout(), trail)
		},
	}

	var state string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List applications waiting at a stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			var loans []*dto.LoanResponse
			if err := opts.get("/api/v1/loans/?state="+url.QueryEscape(state), &loans); err != nil {
				return err
			}
			return printLoans(cmd.OutOrStdout(), loans)
		},
	}
	listCmd.Flags().StringVar(&state, "state", string(domain.LoanStateSubmitted), "Workflow state")

	cmd.AddCommand(getCmd, auditCmd, listCmd)
	return cmd
}

func journalCmd(opts *apiOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "General ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check that journal debits equal credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result dto.ConsistencyResponse
			if err := opts.get("/api/v1/journal/consistency", &result); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Consistency check FAILED")
				return err
			}
			if !result.Balanced {
				fmt.Fprintln(cmd.OutOrStdout(), "Consistency check FAILED")
				return fmt.Errorf("journal is unbalanced")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Consistency check PASSED")
			return nil
		},
	}

	var sourceRef, event string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries by source reference or event",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if sourceRef != "" {
				q.Set("source_ref", sourceRef)
			}
			if event != "" {
				q.Set("event", event)
			}
			var entries []*dto.JournalEntryResponse
			if err := opts.get("/api/v1/journal/?"+q.Encode(), &entries); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	listCmd.Flags().StringVar(&sourceRef, "source-ref", "", "Loan id or allocation reference")
	listCmd.Flags().StringVar(&event, "event", "", "Posting event name")

	cmd.AddCommand(consistencyCmd, listCmd)
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations (uses DATABASE_URL, MIGRATIONS_PATH)",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				return postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				return postgres.RunMigrationsDown(cfg.DatabaseURL, cfg.MigrationsPath)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				version, dirty, err := postgres.MigrationStatus(cfg.DatabaseURL, cfg.MigrationsPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d", version)
				if dirty {
					fmt.Fprint(cmd.OutOrStdout(), " (dirty, fix and force before migrating)")
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			},
		},
	)
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <member-id> [role]",
		Short: "Issue a bearer token signed with JWT_SECRET",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			p := domain.Principal{MemberID: args[0], Role: domain.RoleMember}
			if len(args) == 2 {
				p.Role = domain.Role(args[1])
			}

			token, err := jwtGenerate(secret, ttl, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// get issues an authenticated GET and decodes the JSON body into out.
func (o *apiOptions) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return err
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	} else if o.memberID != "" {
		req.Header.Set("X-Member-ID", o.memberID)
		req.Header.Set("X-Role", o.role)
	}

	client := &http.Client{Timeout: o.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d, code %s)", apiErr.Error, resp.StatusCode, apiErr.Code)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return json.Unmarshal(body, out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLoans(w io.Writer, loans []*dto.LoanResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tBORROWER\tPRINCIPAL\tSTATE")
	for _, l := range loans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", truncate(l.ID, 14), l.LoanNumber, l.BorrowerID, l.Principal.StringFixed(2), l.State)
	}
	return tw.Flush()
}

func printAuditTrail(w io.Writer, trail []*dto.AuditRecordResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTION\tFROM\tTO\tACTOR\tCOMMENT")
	for _, a := range trail {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s (%s)\t%s\n",
			a.CreatedAt.Format(time.RFC3339), a.Action, a.FromState, a.ToState, a.ActorID, a.ActorRole, truncate(a.Comment, 40))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
