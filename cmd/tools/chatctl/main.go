// Command chatctl inspects and repairs chat sessions directly in Redis.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/trailchat/backend/internal/config"
	"github.com/zhouzirui/trailchat/backend/internal/logging"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

// serviceFactory opens the chat service and returns its cleanup.
type serviceFactory func(ctx context.Context, redisAddr string, verbose bool) (*chatservice.Service, func(), error)

type app struct {
	out        io.Writer
	newService serviceFactory

	redisAddr string
	verbose   bool
}

func main() {
	_ = godotenv.Load()

	a := &app{out: os.Stdout, newService: openService}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Inspect and repair chat sessions",
		Long: `chatctl talks to the same Redis keys as the API server.

Quick Start:
  chatctl sessions                        # List sessions
  chatctl history <session-id>            # Print the live log
  chatctl deleted <session-id>            # Print deleted messages (purges expired ones)
  chatctl restore <session-id> <ts> <deleted-at>
  chatctl export <session-id> --format yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.redisAddr, "redis", "", "Redis address (overrides REDIS_HOST/REDIS_PORT)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newSessionsCmd(a),
		newHistoryCmd(a),
		newDeletedCmd(a),
		newRestoreCmd(a),
		newExportCmd(a),
	)
	return root
}

// withService runs fn against a freshly opened chat service.
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *chatservice.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, cleanup, err := a.newService(ctx, a.redisAddr, a.verbose)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc)
}

func openService(ctx context.Context, redisAddr string, verbose bool) (*chatservice.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}

	logger := logging.Discard()
	if verbose {
		logger = logging.NewWithWriter(os.Stderr, "debug")
	}

	rdb := store.NewRedisClient(cfg.Redis)
	if err := store.Ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	svc := chatservice.NewService(rdb, chatservice.Options{
		Logger:           logger,
		OpTimeout:        cfg.Redis.OpTimeout,
		MaxTxRetries:     cfg.Redis.MaxTxRetries,
		RetentionSeconds: cfg.Retention.WindowSeconds(),
	})
	return svc, func() { _ = rdb.Close() }, nil
}
