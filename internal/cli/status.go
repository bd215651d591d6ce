package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-gateway/internal/lockfile"
	"github.com/rcliao/agent-gateway/internal/procinspect"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status from the lock file and health endpoint",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	inspector := procinspect.New()
	locks := lockfile.New(cfg.LockPath(), inspector)
	lock, err := locks.Read()
	if err != nil && !errors.Is(err, lockfile.ErrCorrupt) {
		exitErr("read lock", err)
	}

	status := map[string]any{"running": false}
	if errors.Is(err, lockfile.ErrCorrupt) {
		status["lock_corrupt"] = true
	}
	if lock != nil {
		status["lock"] = lock
		status["stale"] = locks.Stale(lock, cfg.Port)
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/status", cfg.Port))
	if err == nil {
		defer resp.Body.Close()
		var health map[string]any
		if body, err := io.ReadAll(resp.Body); err == nil && json.Unmarshal(body, &health) == nil {
			status["running"] = resp.StatusCode == http.StatusOK
			status["daemon"] = health
		}
	}

	b, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(b))
}
