package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Keep a live context that re-renders on every change",
	Long: `Run a live context. The item list is printed again whenever any context
writes, whether announced over the broadcast channel or detected in the
store.

With --form the context also fills a YAML form on start and saves it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formPath, _ := cmd.Flags().GetString("form")
		width, _ := cmd.Flags().GetInt("width")

		var form *page.Form
		opts := SessionOptions{
			Watch: true,
			OnRender: func(items schema.Collection) {
				fmt.Print("\033[H\033[2J")
				fmt.Println(ui.Panel([]string{
					fmt.Sprintf("%d saved question(s)", len(items)),
					ui.RenderMuted("Ctrl+C to stop"),
				}))
				fmt.Println(ui.RenderItems(items, width))
			},
		}
		if formPath != "" {
			f, err := page.LoadForm(formPath)
			if err != nil {
				return err
			}
			form = f
			opts.Source = form
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sess, err := app.OpenSession(ctx, opts)
		if err != nil {
			return err
		}
		defer sess.Stop()

		if form != nil {
			printNotice(sess.AutofillAllOnLoad())
			if err := form.Save(formPath); err != nil {
				return err
			}
		}

		<-ctx.Done()
		fmt.Printf("\nStopping after %d reload(s)...\n", sess.Reloads())
		return nil
	},
}

var hubCmd = &cobra.Command{
	Use:     "hub",
	GroupID: "sync",
	Short:   "Run the WebSocket relay that connects contexts across processes",
	Long: `Start a WebSocket relay. Every message a connected context publishes is
relayed to every connected context, the sender included.

Point contexts at it with:
  broadcast.mode = "websocket"
  broadcast.url  = "ws://localhost:7733/ws"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := app.cfg.Hub.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := broadcast.NewServer(&broadcast.ServerConfig{
			Port:   port,
			Logger: log.New(os.Stderr, "[hub] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start hub: %w", err)
		}

		fmt.Printf("%s Hub listening on %s\n", ui.RenderPass("✓"), server.Addr())
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down hub...")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("failed to stop hub: %w", err)
		}
		fmt.Println("Hub stopped")
		return nil
	},
}

func init() {
	watchCmd.Flags().String("form", "", "YAML form to fill and keep in sync")
	watchCmd.Flags().Int("width", 80, "Truncate content to this many characters (0 for no limit)")
	hubCmd.Flags().IntP("port", "p", 7733, "Port to listen on")

	rootCmd.AddCommand(watchCmd, hubCmd)
}
