package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fitlife/fitlife-sync/pkg/offline"
)

var (
	clientEnvFile  string
	clientBaseURL  string
	clientToken    string
	clientStoreDSN string
)

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Inspect and drive the offline client runtime",
	Long:  "Commands that open the offline client store and work on its sync queue and cache",
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay queued offline actions",
	Long:  "Send queued actions to the server in order, stopping at the first failure",
	Args:  cobra.NoArgs,
	RunE:  runReplay,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and connectivity status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List actions that will not be replayed again",
	Args:  cobra.NoArgs,
	RunE:  runDeadLetters,
}

var requeueCmd = &cobra.Command{
	Use:   "requeue [action-id]",
	Short: "Move a dead-lettered action back to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequeue,
}

func init() {
	ClientCmd.PersistentFlags().StringVarP(&clientEnvFile, "env-file", "e", ".env", "Optional .env file to load")
	ClientCmd.PersistentFlags().StringVar(&clientBaseURL, "base-url", "", "API base URL (overrides FITLIFE_CLIENT_BASE_URL)")
	ClientCmd.PersistentFlags().StringVar(&clientToken, "token", "", "Bearer token (overrides FITLIFE_CLIENT_TOKEN)")
	ClientCmd.PersistentFlags().StringVar(&clientStoreDSN, "store-dsn", "", "Offline store DSN (overrides FITLIFE_CLIENT_STORE_DSN)")

	bindFlags(ClientCmd, "base-url", "token", "store-dsn")

	ClientCmd.AddCommand(replayCmd)
	ClientCmd.AddCommand(cleanupCmd)
	ClientCmd.AddCommand(statusCmd)
	ClientCmd.AddCommand(deadLettersCmd)
	ClientCmd.AddCommand(requeueCmd)
}

func openRuntime(cmd *cobra.Command) (context.Context, *offline.Runtime, error) {
	cfg, err := loadConfig(clientEnvFile)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := offline.New(ctx, offline.Params{
		Config: cfg.Client,
		Online: true,
		Logger: newLogger(cfg),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open offline runtime: %w", err)
	}
	return ctx, rt, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	result, err := rt.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	removed, err := rt.Store.Cleanup(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	status, err := rt.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), status)
}

func runDeadLetters(cmd *cobra.Command, args []string) error {
	ctx, rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	actions, err := rt.Queue.DeadLetters(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), actions)
}

func runRequeue(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid action id %q", args[0])
	}

	ctx, rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Queue.Requeue(ctx, uint(id)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Action %d requeued\n", id)
	return err
}
