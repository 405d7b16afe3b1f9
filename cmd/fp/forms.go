package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/formpal/formpal/internal/page"
)

var fillCmd = &cobra.Command{
	Use:     "fill <form.yaml>",
	GroupID: "forms",
	Short:   "Autofill a form from saved items",
	Long: `Fill the fields of a YAML form from saved items.

Without --item every field matched by some item is filled. With --item only
fields matching that item's title are filled. The form file is rewritten
with the filled values unless --dry-run is set, in which case the result is
printed instead.

Form layout:
  title: Acme application
  groups:
    - name: question answers
      fields:
        - label: Why do you want to work here?
          value: ""
    - name: cover letter
      fields:
        - label: Cover letter
          value: ""`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, _ := cmd.Flags().GetString("item")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		form, err := page.LoadForm(args[0])
		if err != nil {
			return err
		}

		sess, err := app.OpenSession(cmd.Context(), SessionOptions{Source: form})
		if err != nil {
			return err
		}
		defer sess.Stop()

		if itemID != "" {
			if _, ok := sess.Repository().Get(itemID); !ok {
				return fmt.Errorf("no item with id %s", itemID)
			}
			if err := noticeErr(sess.AutofillOne(itemID)); err != nil {
				return err
			}
		} else {
			n := sess.AutofillAllOnLoad()
			if n.Silent() {
				fmt.Println("No matching question found")
			} else if err := noticeErr(n); err != nil {
				return err
			}
		}

		return writeForm(form, args[0], dryRun)
	},
}

var typeCmd = &cobra.Command{
	Use:     "type <form.yaml> <label> <value>",
	GroupID: "forms",
	Short:   "Enter a value into a form field and capture it",
	Long: `Set a field of a YAML form as if the user typed it and committed the
edit. The edit is captured into the saved items: a matching item is updated
in place, otherwise a new item titled with the label is created.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		form, err := page.LoadForm(args[0])
		if err != nil {
			return err
		}

		sess, err := app.OpenSession(cmd.Context(), SessionOptions{Source: form})
		if err != nil {
			return err
		}
		defer sess.Stop()

		before := len(sess.Repository().Items())
		if err := form.Type(args[1], args[2]); err != nil {
			return err
		}
		after := len(sess.Repository().Items())

		if after > before {
			fmt.Printf("Captured %q as a new item\n", args[1])
		}
		return writeForm(form, args[0], false)
	},
}

func writeForm(form *page.Form, path string, dryRun bool) error {
	if dryRun {
		return yaml.NewEncoder(os.Stdout).Encode(form.Spec())
	}
	return form.Save(path)
}

func init() {
	fillCmd.Flags().String("item", "", "Fill only from the item with this id")
	fillCmd.Flags().Bool("dry-run", false, "Print the filled form instead of saving it")

	rootCmd.AddCommand(fillCmd, typeCmd)
}
