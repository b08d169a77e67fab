package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmosPulse/proof-stamp/internal/config"
	"github.com/AmosPulse/proof-stamp/internal/dispatch"
	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/tracker"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Close duplicate tracker issues left by interrupted runs",
	Long: "List open factory-labeled issues, group them by the task marker embedded in\n" +
		"each body, and close every duplicate beyond the lowest issue number as not\n" +
		"planned. Durable state self-heals on the next dispatch: the listing index\n" +
		"points every task at its surviving issue.",
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
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

	closed, err := closeDuplicates(cmd.Context(), client, cfg.RateInterval)
	if err != nil {
		return err
	}
	if closed == 0 {
		log.Info("no duplicate issues found")
	}
	return nil
}

// closeDuplicates is the testable core of the cleanup command. It groups the
// open factory-labeled issues by task marker, keeps the lowest-numbered issue
// in each group, closes the rest as not planned, and returns how many it
// closed. A failed close is logged and skipped; the issue stays open for the
// next cleanup.
func closeDuplicates(ctx context.Context, client *tracker.Client, interval time.Duration) (int, error) {
	issues, err := client.ListOpenIssues(ctx, dispatch.TrackerLabel)
	if err != nil {
		return 0, fmt.Errorf("list open issues: %w", err)
	}

	byTask := make(map[string][]tracker.Issue)
	for _, is := range issues {
		id := dispatch.TaskIDFromBody(is.Body)
		if id == "" {
			// Not one of ours, or the marker was edited away. Leave it alone.
			continue
		}
		byTask[id] = append(byTask[id], is)
	}

	ids := make([]string, 0, len(byTask))
	for id := range byTask {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	closed := 0
	for _, id := range ids {
		group := byTask[id]
		if len(group) < 2 {
			continue
		}
		// Keep the oldest issue; it is the one comments and links point at.
		sort.Slice(group, func(i, j int) bool { return group[i].Number < group[j].Number })
		for _, dup := range group[1:] {
			if closed > 0 {
				time.Sleep(interval)
			}
			comment := fmt.Sprintf("Closing as a duplicate of #%d.", group[0].Number)
			if commentErr := client.AddComment(ctx, dup.Number, comment); commentErr != nil {
				log.Warning(fmt.Sprintf("duplicate comment on #%d: %v", dup.Number, commentErr))
			}
			patch := tracker.IssuePatch{
				State:       tracker.String("closed"),
				StateReason: tracker.String("not_planned"),
			}
			if _, patchErr := client.UpdateIssue(ctx, dup.Number, patch); patchErr != nil {
				log.Warning(fmt.Sprintf("close duplicate #%d (%s): %v", dup.Number, id, patchErr))
				continue
			}
			log.OK(fmt.Sprintf("closed duplicate issue #%d for %s (kept #%d)", dup.Number, id, group[0].Number))
			closed++
		}
	}
	return closed, nil
}
