package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/session"
	"github.com/formpal/formpal/internal/ui"
)

// withSession runs fn against a session without a page.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session.Session) error) error {
	ctx := cmd.Context()
	sess, err := app.OpenSession(ctx, SessionOptions{})
	if err != nil {
		return err
	}
	defer sess.Stop()
	return fn(ctx, sess)
}

// readContent returns arg, or stdin when arg is "-".
func readContent(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read content from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

var addCmd = &cobra.Command{
	Use:     "add <title> <content>",
	GroupID: "items",
	Short:   "Save a new question and answer",
	Long: `Save a new question/answer item at the top of the collection.

Use "-" as content to read it from stdin:
  fp add "Cover letter" - < letter.txt`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(args[1])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			return noticeErr(s.Add(ctx, args[0], content))
		})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "items",
	Short:   "Change an item's title or content",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		if !cmd.Flags().Changed("title") && !cmd.Flags().Changed("content") {
			return fmt.Errorf("nothing to update: pass --title and/or --content")
		}

		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			item, ok := s.Repository().Get(args[0])
			if !ok {
				return fmt.Errorf("no item with id %s", args[0])
			}
			if cmd.Flags().Changed("title") {
				item.Title = title
			}
			if cmd.Flags().Changed("content") {
				c, err := readContent(content)
				if err != nil {
					return err
				}
				item.Content = c
			}
			return noticeErr(s.Update(ctx, item.ID, item.Title, item.Content))
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "items",
	Short:   "Delete an item after confirmation",
	Long: `Delete an item. fp asks for confirmation when stdin is a terminal;
otherwise --yes is required.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if !yes && !interactive {
			return fmt.Errorf("refusing to delete without confirmation: stdin is not a terminal, pass --yes")
		}

		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			if _, ok := s.Repository().Get(args[0]); !ok {
				return fmt.Errorf("no item with id %s", args[0])
			}
			n := s.Delete(ctx, args[0], func(item schema.QuestionItem) bool {
				if yes {
					return true
				}
				return confirmDelete(item)
			})
			if n.Silent() {
				fmt.Println("Nothing deleted")
				return nil
			}
			return noticeErr(n)
		})
	},
}

func confirmDelete(item schema.QuestionItem) bool {
	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Delete %q?", item.DisplayTitle())).
		Description("This removes it from every context and cannot be undone.").
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false
	}
	return ok
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "items",
	Short:   "List saved items, newest first",
	Long: `List saved items, newest first.

--since accepts a date (2024-03-01) or natural language ("2 weeks ago",
"last monday").`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		width, _ := cmd.Flags().GetInt("width")

		var cutoff time.Time
		if since != "" {
			t, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			cutoff = t
		}

		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			items := s.Repository().Find(func(item schema.QuestionItem) bool {
				return !item.CreatedAt.Before(cutoff)
			})
			fmt.Println(ui.RenderItems(items, width))
			return nil
		})
	},
}

// parseSince reads an absolute date or a natural-language time relative
// to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", text, time.Local); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: no date found", text)
	}
	return r.Time, nil
}

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "items",
	Short:   "Find items whose title or content contains the query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		width, _ := cmd.Flags().GetInt("width")
		return withSession(cmd, func(ctx context.Context, s *session.Session) error {
			fmt.Println(ui.RenderItems(s.Search(args[0]), width))
			return nil
		})
	},
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().String("content", "", `New content ("-" reads stdin)`)
	deleteCmd.Flags().BoolP("yes", "y", false, "Delete without asking")
	listCmd.Flags().String("since", "", "Only items created at or after this time")
	listCmd.Flags().Int("width", 80, "Truncate content to this many characters (0 for no limit)")
	searchCmd.Flags().Int("width", 80, "Truncate content to this many characters (0 for no limit)")

	rootCmd.AddCommand(addCmd, updateCmd, deleteCmd, listCmd, searchCmd)
}
