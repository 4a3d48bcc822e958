package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/fill"
	"github.com/marcus/formsync/internal/input"
	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/output"
)

var fillCmd = &cobra.Command{
	Use:   "fill <form-id>",
	Short: "Fill in a form and submit it",
	Long: `Fill in a form interactively. Fields with a show-if rule appear only while
the rule holds, and answers to hidden fields are never submitted.

With --value the form is submitted without prompting:

  formsync fill frm_1 --value name=Ann --value attending=Yes --value guests=2

--value @answers.txt reads one field=value per line from a file, and
--value - reads them from stdin.`,
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		form, err := c.GetForm(args[0])
		if err != nil {
			return err
		}

		var values models.FormValues
		pairs, _ := cmd.Flags().GetStringArray("value")
		pairs, err = input.ExpandValues(pairs, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(pairs) > 0 {
			values, err = fill.ParseAssignments(form, pairs)
			if err != nil {
				return err
			}
		} else {
			s := fill.New(form)
			if err := s.Run(); err != nil {
				if errors.Is(err, fill.ErrAborted) {
					output.Warning("not submitted")
					return nil
				}
				return err
			}
			values = s.Values()
		}

		// Same checks the server runs, so the user sees every problem at once.
		if errs := conditional.Validate(form.Fields, values); errs != nil {
			for _, f := range form.Fields {
				if msg, ok := errs[f.ID]; ok {
					output.Error("%s", msg)
				}
			}
			return fmt.Errorf("%d invalid answers", len(errs))
		}

		sub, err := c.Submit(form.ID, values)
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(sub)
		}

		output.Success("Submitted (%s)", sub.ID)
		switch {
		case sub.Synced:
			fmt.Printf("Synced to Airtable as %s\n", sub.AirtableRecordID)
		case sub.SyncError != "":
			output.Warning("Airtable sync failed: %s (retry: formsync submissions sync %s)", sub.SyncError, sub.ID)
		}
		return nil
	},
}

func init() {
	fillCmd.Flags().StringArray("value", nil, "answer as field=value, by field ID or label (repeatable; skips the prompts)")
	rootCmd.AddCommand(fillCmd)
}
