package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/templates"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new factory project",
	Long:  "Scaffold a new factory project with factory.yaml, product/BACKLOG.yml, and product/PRODUCT.md.",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	return initProject(dir, initFlags.force)
}

// initProject is the testable core of the init command. It stamps the embedded
// starter files into the target directory. The credential is deliberately not
// part of any stamped file; dispatch reads REPO_TOKEN from the environment.
func initProject(dir string, force bool) error {
	// Guard: refuse to re-initialize an existing project unless --force is set.
	if !force {
		for _, name := range []string{"factory.yaml", filepath.Join("product", "BACKLOG.yml")} {
			if _, statErr := os.Stat(filepath.Join(dir, name)); statErr == nil {
				return fmt.Errorf("%s already exists — project appears to be already initialized; use --force to overwrite", name)
			}
		}
	}

	if err := copyInitTemplates(dir, force); err != nil {
		return err
	}

	log.Info("project initialized — edit factory.yaml and product/BACKLOG.yml, export REPO_TOKEN, then run: factory dispatch")
	return nil
}

// copyInitTemplates walks the embedded init/ FS and copies files to the target project.
//
// Destination mapping (no filename transformations):
//   - init/factory.yaml              → {dir}/
//   - init/BACKLOG.yml, PRODUCT.md   → {dir}/product/
func copyInitTemplates(dir string, force bool) error {
	return fs.WalkDir(templates.Init, "init", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		// Strip the "init/" prefix to get the relative path within the init tree.
		rel := strings.TrimPrefix(path, "init/")

		var dst string
		switch rel {
		case "factory.yaml":
			dst = filepath.Join(dir, rel)
		case "BACKLOG.yml", "PRODUCT.md":
			dst = filepath.Join(dir, "product", rel)
		default:
			// Unknown file — skip silently.
			return nil
		}

		if !force {
			if _, statErr := os.Stat(dst); statErr == nil {
				log.Warning(fmt.Sprintf("%s already exists — skipping (use --force to overwrite)", dst))
				return nil
			}
		}

		if mkErr := os.MkdirAll(filepath.Dir(dst), 0o755); mkErr != nil {
			return fmt.Errorf("create directory for %s: %w", dst, mkErr)
		}

		data, readErr := templates.Init.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read template %s: %w", path, readErr)
		}

		if writeErr := os.WriteFile(dst, data, 0o644); writeErr != nil {
			return fmt.Errorf("write %s: %w", dst, writeErr)
		}

		log.OK(fmt.Sprintf("created %s", dst))
		return nil
	})
}
