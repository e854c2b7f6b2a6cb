package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/quickpdf/internal/jobs"
)

// inspectOutput はトークンのハッシュを除いたレコードと期限情報です。
type inspectOutput struct {
	*jobs.View
	OutputFilename string    `json:"output_filename"`
	ExpiresAt      time.Time `json:"expires_at"`
	Expired        bool      `json:"expired"`
}

// listEntry は一覧の1行です。
type listEntry struct {
	JobID     string      `json:"job_id"`
	Status    jobs.Status `json:"status"`
	Operation string      `json:"operation"`
	CreatedAt time.Time   `json:"created_at"`
	Expired   bool        `json:"expired"`
}

type listOutput struct {
	Jobs []listEntry `json:"jobs"`
}

func newSweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired jobs and their artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := e.sweeper.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newInspectCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <jobId>",
		Short: "Show a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := e.store.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, jobs.ErrNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), inspectOutput{
				View:           record.View(),
				OutputFilename: record.OutputFilename,
				ExpiresAt:      record.CreatedAt.Add(e.cfg.JobTTL()),
				Expired:        e.sweeper.Expired(record),
			})
		},
	}
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List job records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := e.store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := listOutput{Jobs: make([]listEntry, 0, len(ids))}
			for _, id := range ids {
				record, err := e.store.Get(cmd.Context(), id)
				if err != nil {
					e.log.WithError(err).WithField("job_id", id).Warn("skipping unreadable job record")
					continue
				}
				out.Jobs = append(out.Jobs, listEntry{
					JobID:     record.JobID,
					Status:    record.Status,
					Operation: string(record.Operation),
					CreatedAt: record.CreatedAt,
					Expired:   e.sweeper.Expired(record),
				})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
