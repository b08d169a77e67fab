package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmosPulse/proof-stamp/internal/config"
	"github.com/AmosPulse/proof-stamp/internal/ledger"
	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/state"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

var costsFlags struct {
	out string
}

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Export the cost ledger as a JSON report",
	Long: "Render the durable cost ledger as a JSON report: ceiling, total consumed,\n" +
		"remaining headroom, per-category breakdown, and every committed entry.",
	RunE: runCosts,
}

func init() {
	costsCmd.Flags().StringVar(&costsFlags.out, "out", "", "Write the report to this file instead of stdout")
}

func runCosts(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadConfig(filepath.Join(root, config.FileName))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)

	// A project that has never dispatched has no ledger yet; report zeros
	// rather than failing.
	lf, err := state.LoadLedger(cfg.StateDir)
	if errors.Is(err, state.ErrNotFound) {
		lf = &types.LedgerFile{}
	} else if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	data, err := ledger.New(cfg.BudgetCeiling, lf).Report(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("render cost report: %w", err)
	}

	if costsFlags.out == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(costsFlags.out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", costsFlags.out, err)
	}
	log.OK(fmt.Sprintf("cost report written to %s", costsFlags.out))
	return nil
}
