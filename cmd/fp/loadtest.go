package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/config"
	"github.com/formpal/formpal/internal/loadtest"
	"github.com/formpal/formpal/internal/store"
	"github.com/formpal/formpal/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Measure lost updates with many concurrent contexts",
	Long: `Start many contexts writing to one store at the same time and report how
many acknowledged writes were lost to last-writer-wins.

The run uses a scratch store in a temporary directory, never your saved
items. --backend picks the store type (sqlite, file or memory).

Example:
  fp loadtest --contexts 20 --writes 10
  fp loadtest --contexts 20 --writes 10 --reload`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		contexts, _ := cmd.Flags().GetInt("contexts")
		writes, _ := cmd.Flags().GetInt("writes")
		reload, _ := cmd.Flags().GetBool("reload")

		dir, err := os.MkdirTemp("", "fp-loadtest-*")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		var s store.Store
		switch app.cfg.Store.Backend {
		case config.BackendFile:
			s, err = store.OpenFile(filepath.Join(dir, "items"), nil)
		case config.BackendMemory:
			s = store.NewMemory(nil)
		default:
			s, err = store.OpenSQLite(filepath.Join(dir, "items.db"), nil)
		}
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("%s Running %d contexts x %d writes on %s...\n",
			ui.RenderAccent("→"), contexts, writes, app.cfg.Store.Backend)

		report, err := loadtest.Run(cmd.Context(), s, loadtest.Options{
			Contexts:          contexts,
			WritesPerContext:  writes,
			ReloadBeforeWrite: reload,
			Hub:               broadcast.NewLocalHub(nil),
		})
		if err != nil {
			return err
		}

		fmt.Println()
		report.Print(os.Stdout)
		if report.Lost > 0 {
			fmt.Printf("\n%s %d of %d writes were overwritten by concurrent contexts\n",
				ui.RenderWarn("⚠"), report.Lost, report.Succeeded)
		}
		return nil
	},
}

func init() {
	loadtestCmd.Flags().Int("contexts", 10, "Number of concurrent contexts")
	loadtestCmd.Flags().Int("writes", 10, "Items added by each context")
	loadtestCmd.Flags().Bool("reload", false, "Reload before every write")

	rootCmd.AddCommand(loadtestCmd)
}
