package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-gateway/internal/gateway"
)

var (
	testModeFlag      bool
	allowMultipleFlag bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway daemon",
		Run:   runServe,
	}
	cmd.Flags().BoolVar(&testModeFlag, "test-mode", false, "Skip process reconciliation (for tests)")
	cmd.Flags().BoolVar(&allowMultipleFlag, "allow-multiple", false, "Allow multiple gateway instances")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if testModeFlag {
		cfg.TestMode = true
	}
	if allowMultipleFlag {
		cfg.AllowMultiple = true
	}

	logger := newLogger(cfg)

	g, err := gateway.New(cfg, logger)
	if err != nil {
		exitErr("init gateway", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := g.Run(ctx); err != nil {
		exitErr("gateway", err)
	}
}
