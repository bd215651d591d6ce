package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-gateway/internal/gateway"
	"github.com/rcliao/agent-gateway/internal/lockfile"
	"github.com/rcliao/agent-gateway/internal/procinspect"
	"github.com/rcliao/agent-gateway/internal/reconcile"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Terminate orphaned gateway processes and clear stale locks",
		Run:   runReconcile,
	}

	RootCmd.AddCommand(cmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger := newLogger(cfg)

	inspector := procinspect.New(gateway.GatewayMarker, cfg.StateDir)
	locks := lockfile.New(cfg.LockPath(), inspector)
	rec := reconcile.New(inspector, locks, logger)

	res, err := rec.Startup(cmd.Context(), cfg.Port, reconcile.Options{
		GracePeriod: cfg.Reconcile.GracePeriod.Std(),
	})
	if err != nil {
		exitErr("reconcile", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
