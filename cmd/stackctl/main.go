package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lapiml/stackctl/pkg/errdefs"
)

var (
	version = "1.0.0"
	commit  = ""
)

func newRootCmd(log *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stackctl",
		Short: "stackctl stands up compose-style service stacks on a local engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("file", "f", "stack.yml", "descriptor file")
	cmd.PersistentFlags().StringP("project-name", "p", "", "stack name (defaults to the descriptor directory name)")
	cmd.PersistentFlags().StringP("log", "l", "info", "log level: debug, info, warn, error")

	cmd.AddCommand(newUpCmd(log))
	cmd.AddCommand(newDownCmd(log))
	cmd.AddCommand(newPsCmd(log))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stackctl %s %s\n", version, commit)
		},
	}
}

func setupLogger(level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	log, _ := cfg.Build()
	return log
}

func main() {
	// a .env next to the invocation provides engine and credential settings
	_ = godotenv.Load()

	level := "info"
	for i, arg := range os.Args {
		if (arg == "--log" || arg == "-l") && i+1 < len(os.Args) {
			level = os.Args[i+1]
		}
	}
	log := setupLogger(level)
	defer log.Sync()

	root := newRootCmd(log)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errdefs.ExitCode(err))
	}
}
