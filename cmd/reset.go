package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmosPulse/proof-stamp/internal/config"
	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/state"
	"github.com/AmosPulse/proof-stamp/internal/tracker"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Put every tracked issue back to To Do",
	Long: "Reopen every tracked issue, post a To Do status comment, place it on the\n" +
		"project board when one is configured, and reset its durable record to\n" +
		"pending with a fresh timestamp. Issue numbers are kept, so the next\n" +
		"dispatch reconciles the backlog without creating duplicates. The ledger is\n" +
		"not touched: spend that already happened stays counted.",
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadConfig(filepath.Join(root, config.FileName))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)

	client, err := tracker.New(cfg.RepoOwner, cfg.RepoName, cfg.Token)
	if err != nil {
		return err
	}
	if cfg.APIBaseURL != "" {
		client.BaseURL = cfg.APIBaseURL
	}

	st, err := state.LoadTrackerState(cfg.StateDir)
	if errors.Is(err, state.ErrNotFound) {
		log.Info("no tracker state to reset")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load tracker state: %w", err)
	}

	ids := make([]string, 0, len(st.Issues))
	for id := range st.Issues {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ctx := cmd.Context()
	now := time.Now().UTC()
	reset := 0
	for i, id := range ids {
		rec := st.Issues[id]
		if rec.IssueNumber > 0 {
			if i > 0 {
				time.Sleep(cfg.RateInterval)
			}
			if !resetIssue(ctx, client, cfg.ProjectID, id, &rec) {
				continue
			}
		}
		rec.Status = types.StatusPending
		rec.StateEnteredAt = now
		st.Issues[id] = rec
		reset++
	}

	if err := state.SaveTrackerState(cfg.StateDir, st); err != nil {
		return fmt.Errorf("persist tracker state: %w", err)
	}
	log.OK(fmt.Sprintf("reset %d tracked item(s) to pending", reset))
	return nil
}

// resetIssue reopens one issue and makes the To Do status visible on the
// thread and, when a board is configured, on the board. A failed reopen
// leaves the durable record untouched so the failure is retryable; comment
// and board placement are decoration and only warn.
func resetIssue(ctx context.Context, client *tracker.Client, projectID, id string, rec *types.IssueRecord) bool {
	patch := tracker.IssuePatch{State: tracker.String("open")}
	if _, err := client.UpdateIssue(ctx, rec.IssueNumber, patch); err != nil {
		log.Warning(fmt.Sprintf("reopen issue #%d (%s): %v", rec.IssueNumber, id, err))
		return false
	}

	if err := client.AddComment(ctx, rec.IssueNumber, "🔄 **Status Update:** To Do"); err != nil {
		log.Warning(fmt.Sprintf("status comment on #%d: %v", rec.IssueNumber, err))
	}

	if projectID != "" && rec.BoardItemID == "" {
		nodeID := rec.NodeID
		if nodeID == "" {
			issue, err := client.GetIssue(ctx, rec.IssueNumber)
			if err != nil {
				log.Warning(fmt.Sprintf("resolve node id for #%d: %v", rec.IssueNumber, err))
				return true
			}
			nodeID = issue.NodeID
			rec.NodeID = nodeID
		}
		itemID, err := client.AddToProject(ctx, projectID, nodeID)
		if err != nil {
			log.Warning(fmt.Sprintf("board placement for #%d: %v", rec.IssueNumber, err))
			return true
		}
		rec.BoardItemID = itemID
	}
	return true
}
