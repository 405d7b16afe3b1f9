package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formpal/formpal/internal/config"
	"github.com/formpal/formpal/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Show or create the fp configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.toml with the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := filepath.Join(app.cfg.Home, config.FileName)
		if err := app.cfg.WriteFile(path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := app.cfg
		source := v.ConfigFileUsed()
		if source == "" {
			source = "(defaults, no config file)"
		}

		fmt.Printf("Config file:     %s\n", source)
		fmt.Printf("Home:            %s\n", c.Home)
		fmt.Printf("store.backend:   %s\n", c.Store.Backend)
		fmt.Printf("store.path:      %s\n", c.Store.Path)
		fmt.Printf("store.timeout:   %v\n", c.Store.Timeout)
		fmt.Printf("store.debounce:  %v\n", c.Store.Debounce)
		fmt.Printf("broadcast.mode:  %s\n", c.Broadcast.Mode)
		fmt.Printf("broadcast.url:   %s\n", c.Broadcast.URL)
		fmt.Printf("hub.port:        %d\n", c.Hub.Port)
		fmt.Printf("autofill.groups: %s\n", strings.Join(c.Autofill.Groups, ", "))
		fmt.Printf("log.file:        %s\n", c.Log.File)
		fmt.Printf("log.verbose:     %v\n", c.Log.Verbose)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
