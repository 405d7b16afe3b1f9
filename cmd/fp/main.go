// Command fp saves answers to recurring form questions and fills them back
// into forms.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/formpal/formpal/internal/config"
)

var (
	v   *viper.Viper
	app *App
)

var rootCmd = &cobra.Command{
	Use:   "fp",
	Short: "Save answers to form questions and autofill them",
	Long: `fp keeps a shared collection of question/answer items and fills
matching form fields from it.

Every running fp context (a watch session, a fill run, a one-shot command)
reads and writes the same store and announces its writes, so the others
reload and stay in sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	},
}

// persistentPreRun is attached in init to avoid an initialization cycle
// between rootCmd and bindFlag.
func persistentPreRun(cmd *cobra.Command, args []string) error {
	home, _ := cmd.Flags().GetString("home")
	if home == "" {
		home = config.Home()
	}

	v = config.New(home)
	bindFlag("store.backend", "backend")
	bindFlag("store.path", "store")
	bindFlag("broadcast.mode", "broadcast")
	bindFlag("log.verbose", "verbose")

	cfg, err := config.Load(v, home)
	if err != nil {
		return err
	}
	app = NewApp(cfg)
	return nil
}

func bindFlag(key, flag string) {
	if f := rootCmd.PersistentFlags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRun

	rootCmd.AddGroup(
		&cobra.Group{ID: "items", Title: "Items:"},
		&cobra.Group{ID: "forms", Title: "Forms:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().String("home", "", "fp home directory (default $FORMPAL_HOME or ~/.formpal)")
	rootCmd.PersistentFlags().String("backend", "", "store backend: sqlite, file or memory")
	rootCmd.PersistentFlags().String("store", "", "store location (database file or directory)")
	rootCmd.PersistentFlags().String("broadcast", "", "change announcements: local, websocket or none")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log component activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if app != nil {
			_ = app.Close()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
