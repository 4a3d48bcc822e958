package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/browse"
	"github.com/marcus/formsync/internal/client"
	"github.com/marcus/formsync/internal/dateparse"
	"github.com/marcus/formsync/internal/output"
)

var submissionsCmd = &cobra.Command{
	Use:     "submissions",
	Aliases: []string{"subs"},
	Short:   "Inspect submissions and retry Airtable syncs",
	GroupID: "data",
}

var submissionsListCmd = &cobra.Command{
	Use:     "list <form-id>",
	Aliases: []string{"ls"},
	Short:   "List a form's submissions, newest first",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		list, err := c.ListSubmissions(args[0])
		if err != nil {
			return err
		}
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			from, err := dateparse.ParseSince(since)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			filterSince(list, from)
		}
		if jsonMode() {
			return output.JSON(list)
		}

		form, err := c.GetForm(args[0])
		if err != nil {
			return err
		}

		if b, _ := cmd.Flags().GetBool("browse"); b {
			model := browse.New(form, list.Submissions, c.SyncSubmission)
			p := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running browser: %w", err)
			}
			return nil
		}

		if len(list.Submissions) == 0 {
			fmt.Println("No submissions yet")
			return nil
		}
		verbose, _ := cmd.Flags().GetBool("long")
		for _, sub := range list.Submissions {
			fmt.Println(output.FormatSubmissionShort(sub))
			if verbose {
				for _, line := range output.FormatSubmissionData(sub, form) {
					fmt.Println("    " + line)
				}
			}
		}
		if list.Unsynced > 0 {
			fmt.Println()
			output.Warning("%d submissions not synced to Airtable", list.Unsynced)
		}
		return nil
	},
}

var submissionsSyncCmd = &cobra.Command{
	Use:   "sync <submission-id>...",
	Short: "Push submissions to Airtable again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}

		failed := 0
		for _, id := range args {
			sub, err := c.SyncSubmission(id)
			if err != nil {
				return fmt.Errorf("sync %s: %w", id, err)
			}
			if jsonMode() {
				if err := output.JSON(sub); err != nil {
					return err
				}
				continue
			}
			if sub.Synced {
				output.Success("%s synced as %s", sub.ID, sub.AirtableRecordID)
			} else {
				failed++
				output.Warning("%s: %s", sub.ID, sub.SyncError)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d submissions failed to sync", failed, len(args))
		}
		return nil
	},
}

// filterSince keeps submissions made at or after from.
func filterSince(list *client.SubmissionList, from time.Time) {
	kept := list.Submissions[:0]
	list.Unsynced = 0
	for _, sub := range list.Submissions {
		if sub.SubmittedAt.Before(from) {
			continue
		}
		kept = append(kept, sub)
		if !sub.Synced {
			list.Unsynced++
		}
	}
	list.Submissions = kept
}

func init() {
	submissionsListCmd.Flags().String("since", "", "only submissions since a date (2026-03-01, today, yesterday, 7d, 2w, monday)")
	submissionsListCmd.Flags().Bool("browse", false, "open an interactive table")
	submissionsListCmd.Flags().BoolP("long", "l", false, "show every answer")

	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsSyncCmd)
	rootCmd.AddCommand(submissionsCmd)
}
