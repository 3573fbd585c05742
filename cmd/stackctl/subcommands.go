package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lapiml/stackctl/pkg/journal"
	"github.com/lapiml/stackctl/pkg/operator"
	"github.com/lapiml/stackctl/pkg/parser"
)

// loadDescriptor reads the descriptor named by --file and derives the stack
// name: --project-name when set, else the descriptor's directory name.
func loadDescriptor(cmd *cobra.Command) (*parser.Config, string, string, error) {
	path, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", "", err
	}
	cfg, err := parser.Parse(data)
	if err != nil {
		return nil, "", "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", "", err
	}
	baseDir := filepath.Dir(abs)

	stack, _ := cmd.Flags().GetString("project-name")
	if stack == "" {
		stack = filepath.Base(baseDir)
	}
	return cfg, stack, baseDir, nil
}

// contextWithGrace outlives the interrupted command context just long
// enough for a graceful stop.
func contextWithGrace(grace time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), grace+5*time.Second)
}

func defaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "stackctl.db"
	}
	return filepath.Join(home, ".local", "state", "stackctl", "journal.db")
}

func openJournal(path string) (*journal.Journal, error) {
	if path == "off" {
		return nil, nil
	}
	return journal.Open(path)
}

func newUpCmd(log *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create and start the stack in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stack, baseDir, err := loadDescriptor(cmd)
			if err != nil {
				return err
			}
			detach, _ := cmd.Flags().GetBool("detach")
			grace, _ := cmd.Flags().GetDuration("grace")
			journalPath, _ := cmd.Flags().GetString("journal")

			j, err := openJournal(journalPath)
			if err != nil {
				return err
			}
			// Detached stacks outlive the process, so restart:always moves
			// to the engine's own policy.
			opts := operator.Options{GracePeriod: grace, EngineRestart: detach}
			if j != nil {
				defer j.Close()
				opts.Journal = j
			}

			op, err := operator.NewOperator(log, stack, cfg, baseDir, opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := op.Up(ctx); err != nil {
				return err
			}
			if detach {
				return nil
			}

			// attached mode: follow logs and keep restart:always services
			// alive until interrupted, then stop within the grace period
			go func() { _ = op.Supervise(ctx) }()
			_ = op.StreamLogs(ctx, os.Stdout)

			stopCtx, cancel := contextWithGrace(grace)
			defer cancel()
			return op.Stop(stopCtx)
		},
	}
	cmd.Flags().BoolP("detach", "d", false, "start the stack and return without following logs")
	cmd.Flags().Duration("grace", 10*time.Second, "termination grace period")
	cmd.Flags().String("journal", defaultJournalPath(), "transition journal path, or 'off'")
	return cmd
}

func newDownCmd(log *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the stack's containers and network",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stack, baseDir, err := loadDescriptor(cmd)
			if err != nil {
				return err
			}
			grace, _ := cmd.Flags().GetDuration("grace")

			op, err := operator.NewOperator(log, stack, cfg, baseDir, operator.Options{GracePeriod: grace})
			if err != nil {
				return err
			}
			return op.Down(cmd.Context())
		},
	}
	cmd.Flags().Duration("grace", 10*time.Second, "termination grace period")
	return cmd
}

func newPsCmd(log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Report per-service container state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stack, baseDir, err := loadDescriptor(cmd)
			if err != nil {
				return err
			}
			op, err := operator.NewOperator(log, stack, cfg, baseDir, operator.Options{})
			if err != nil {
				return err
			}
			infos, err := op.Ps(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Println(info)
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the descriptor and print its normalized form",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadDescriptor(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded state transitions for the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stack, _, err := loadDescriptor(cmd)
			if err != nil {
				return err
			}
			journalPath, _ := cmd.Flags().GetString("journal")
			j, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.History(cmd.Context(), stack)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-16s  %-14s  %s\n",
					e.At.Format(time.RFC3339), e.Service, e.State, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().String("journal", defaultJournalPath(), "transition journal path")
	return cmd
}
