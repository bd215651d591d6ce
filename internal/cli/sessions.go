package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-gateway/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List known sessions from the on-disk index",
		Run:   runSessions,
	}

	RootCmd.AddCommand(cmd)
}

func runSessions(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	store, err := session.NewStore(cfg.AgentsDir(), nil, newLogger(cfg))
	if err != nil {
		exitErr("open session store", err)
	}

	keys := store.Keys()
	sort.Strings(keys)

	out := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		entry := store.Resolve(key)
		if entry == nil {
			continue
		}
		out = append(out, map[string]any{
			"session_key":   key,
			"session_id":    entry.SessionID,
			"agent_id":      entry.AgentID,
			"session_file":  entry.SessionFile,
			"created_at":    entry.CreatedAt,
			"last_activity": entry.LastActivity,
		})
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
