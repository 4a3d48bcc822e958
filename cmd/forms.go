package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/client"
	"github.com/marcus/formsync/internal/formdef"
	"github.com/marcus/formsync/internal/output"
)

var formsCmd = &cobra.Command{
	Use:     "forms",
	Aliases: []string{"form"},
	Short:   "Create, inspect and delete forms",
	GroupID: "forms",
}

var formsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your forms",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		forms, err := c.ListForms()
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(forms)
		}
		if len(forms) == 0 {
			fmt.Println("No forms yet (create one: formsync forms create --title ...)")
			return nil
		}
		for _, f := range forms {
			updated, _ := time.Parse(time.RFC3339, f.UpdatedAt)
			fmt.Println(output.FormatFormShort(f.ID, f.Title, f.FieldCount, updated))
		}
		return nil
	},
}

var formsShowCmd = &cobra.Command{
	Use:   "show <form-id>",
	Short: "Show a form and its fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		form, err := c.GetForm(args[0])
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(form)
		}
		fmt.Print(output.FormatFormLong(form))
		return nil
	},
}

var formsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		if title == "" {
			return fmt.Errorf("--title is required")
		}

		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		form, err := c.CreateForm(client.FormInput{Title: title, Description: description})
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(form)
		}
		output.Success("Created form %s (%s)", form.Title, form.ID)
		return nil
	},
}

var formsDeleteCmd = &cobra.Command{
	Use:     "delete <form-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a form and its submissions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		if err := c.DeleteForm(args[0]); err != nil {
			return err
		}
		output.Success("Deleted form %s", args[0])
		return nil
	},
}

var formsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create a form from a YAML definition, or replace one with --form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := formdef.Load(args[0])
		if err != nil {
			return err
		}

		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		in := client.FormInputOf(def.Form())

		target, _ := cmd.Flags().GetString("form")
		if target != "" {
			form, err := c.UpdateForm(target, in)
			if err != nil {
				return err
			}
			if jsonMode() {
				return output.JSON(form)
			}
			output.Success("Replaced form %s with %d fields", form.ID, len(form.Fields))
			return nil
		}

		form, err := c.CreateForm(in)
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(form)
		}
		output.Success("Created form %s (%s) with %d fields", form.Title, form.ID, len(form.Fields))
		return nil
	},
}

var formsExportCmd = &cobra.Command{
	Use:   "export <form-id>",
	Short: "Write a form as a YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		form, err := c.GetForm(args[0])
		if err != nil {
			return err
		}
		data, err := formdef.Marshal(form)
		if err != nil {
			return fmt.Errorf("%w (fix the rule first, see: formsync forms check %s)", err, form.ID)
		}

		path, _ := cmd.Flags().GetString("output")
		if path == "" || path == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		output.Success("Wrote %s", path)
		return nil
	},
}

var formsCheckCmd = &cobra.Command{
	Use:   "check <form-id>",
	Short: "Report conditional rules that can never behave as intended",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		resp, err := c.CheckForm(args[0])
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(resp)
		}
		if resp.OK {
			output.Success("No problems found")
			return nil
		}
		for _, issue := range resp.Issues {
			fmt.Println(output.FormatIssue(issue))
		}
		return nil
	},
}

func init() {
	formsCreateCmd.Flags().String("title", "", "form title (required)")
	formsCreateCmd.Flags().String("description", "", "form description (markdown)")
	formsImportCmd.Flags().String("form", "", "replace this existing form instead of creating one")
	formsExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	formsCmd.AddCommand(formsListCmd)
	formsCmd.AddCommand(formsShowCmd)
	formsCmd.AddCommand(formsCreateCmd)
	formsCmd.AddCommand(formsDeleteCmd)
	formsCmd.AddCommand(formsImportCmd)
	formsCmd.AddCommand(formsExportCmd)
	formsCmd.AddCommand(formsCheckCmd)
	rootCmd.AddCommand(formsCmd)
}
