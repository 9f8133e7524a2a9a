package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"librarian/internal/config"
	"librarian/internal/slogutil"
	"librarian/internal/storage"
	"librarian/internal/watcher"
)

var statusJSONFlag bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watch engine's persisted health state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSONFlag, "json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveWorkspace()
	if err != nil {
		return err
	}

	db, err := storage.Open(root, slogutil.NewDiscardLogger())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Best effort cleanup

	store := watcher.NewStateStore(db, watcher.RealClock())
	st, err := store.Load()
	if err != nil {
		return err
	}
	st.SuspectedDead = st.ComputeSuspectedDead(time.Now())

	if statusJSONFlag {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Workspace:      %s\n", orDash(st.WorkspaceRoot))
	fmt.Printf("Tracked files:  %d\n", db.FileCount())
	fmt.Printf("Started:        %s\n", formatTime(st.WatchStartedAt))
	fmt.Printf("Last heartbeat: %s\n", formatTime(st.WatchLastHeartbeat))
	fmt.Printf("Last event:     %s\n", formatTime(st.WatchLastEventAt))
	fmt.Printf("Last reindex:   %s\n", formatTime(st.WatchLastReindexOK))
	fmt.Printf("Cursor:         %s\n", formatCursor(st.Cursor))
	fmt.Printf("Needs catchup:  %v\n", st.NeedsCatchup)
	fmt.Printf("Suspected dead: %v\n", st.SuspectedDead)
	fmt.Printf("Config:         %s\n", cfgSummary(st.EffectiveConfig))
	if st.LastError != "" {
		fmt.Printf("Last error:     %s\n", st.LastError)
	}

	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func formatCursor(c watcher.Cursor) string {
	if c.Kind == watcher.CursorKindGit && c.LastIndexedCommitSHA != "" {
		sha := c.LastIndexedCommitSHA
		if len(sha) > 12 {
			sha = sha[:12]
		}
		return "git @ " + sha
	}
	return "none"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cfgSummary(cfg config.WatchConfig) string {
	return fmt.Sprintf("debounce=%dms batch=%dms storm=%d cascade=%v",
		cfg.DebounceMs, cfg.BatchWindowMs, cfg.StormThreshold, cfg.CascadeReindex)
}
