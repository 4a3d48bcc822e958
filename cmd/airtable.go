package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/client"
	"github.com/marcus/formsync/internal/output"
)

var airtableCmd = &cobra.Command{
	Use:     "airtable",
	Short:   "Connect Airtable and choose where submissions go",
	GroupID: "account",
}

var airtableConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect your Airtable account",
	Long: `Connect your Airtable account.

Without flags this prints a link to Airtable's consent page (OAuth). With
--token a personal access token is stored instead, for servers that have no
OAuth client configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}

		if token, _ := cmd.Flags().GetString("token"); token != "" {
			me, err := c.UpdateMe(client.UserUpdate{AirtableToken: &token})
			if err != nil {
				return err
			}
			if jsonMode() {
				return output.JSON(me)
			}
			output.Success("Airtable token saved")
			return nil
		}

		resp, err := c.AirtableConnect()
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(resp)
		}
		fmt.Println("Open this link to connect Airtable:")
		fmt.Println()
		fmt.Println("  " + resp.AuthorizeURL)
		fmt.Println()
		fmt.Println("Then run: formsync airtable status")
		return nil
	},
}

var airtableStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Airtable connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		st, err := c.AirtableStatus()
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(st)
		}

		if !st.Connected {
			fmt.Println("Airtable: not connected")
			if st.OAuthAvailable {
				fmt.Println("Run: formsync airtable connect")
			} else {
				fmt.Println("Run: formsync airtable connect --token <personal access token>")
			}
			return nil
		}
		fmt.Printf("Airtable: connected (%s)\n", st.Kind)
		if st.AirtableEmail != "" {
			fmt.Printf("Account:  %s\n", st.AirtableEmail)
		}
		if st.Scopes != "" {
			fmt.Printf("Scopes:   %s\n", st.Scopes)
		}
		if st.ExpiresAt != nil {
			fmt.Printf("Expires:  %s\n", *st.ExpiresAt)
		}
		if st.DefaultBaseID != "" {
			fmt.Printf("Default:  %s / %s\n", st.DefaultBaseID, st.DefaultTableID)
		} else {
			output.Warning("no default table (run: formsync airtable use --base ... --table ...)")
		}
		return nil
	},
}

var airtableBasesCmd = &cobra.Command{
	Use:   "bases",
	Short: "List the bases you can sync to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		bases, err := c.AirtableBases()
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(bases)
		}
		for _, b := range bases {
			fmt.Printf("%s  %s  (%s)\n", b.ID, b.Name, b.PermissionLevel)
		}
		return nil
	},
}

var airtableTablesCmd = &cobra.Command{
	Use:   "tables <base-id>",
	Short: "List a base's tables and their fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		tables, err := c.AirtableTables(args[0])
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(tables)
		}
		for _, t := range tables {
			fmt.Printf("%s  %s\n", t.ID, t.Name)
			for _, f := range t.Fields {
				fmt.Printf("    %s (%s)\n", f.Name, f.Type)
			}
		}
		return nil
	},
}

var airtableUseCmd = &cobra.Command{
	Use:   "use",
	Short: "Set the default base and table, or a form's own with --form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, _ := cmd.Flags().GetString("base")
		table, _ := cmd.Flags().GetString("table")
		formID, _ := cmd.Flags().GetString("form")

		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}

		if formID != "" {
			form, err := c.GetForm(formID)
			if err != nil {
				return err
			}
			in := client.FormInputOf(form)
			in.AirtableBaseID, in.AirtableTableID = base, table
			if _, err := c.UpdateForm(formID, in); err != nil {
				return err
			}
			output.Success("Form %s syncs to %s / %s", formID, base, table)
			return nil
		}

		if _, err := c.UpdateMe(client.UserUpdate{AirtableBaseID: &base, AirtableTableID: &table}); err != nil {
			return err
		}
		output.Success("Default Airtable table set to %s / %s", base, table)
		return nil
	},
}

var airtableDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the Airtable connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		if err := c.AirtableDisconnect(); err != nil {
			return err
		}
		output.Success("Airtable disconnected")
		return nil
	},
}

func init() {
	airtableConnectCmd.Flags().String("token", "", "personal access token instead of OAuth")
	airtableUseCmd.Flags().String("base", "", "Airtable base ID (app...)")
	airtableUseCmd.Flags().String("table", "", "Airtable table ID or name")
	airtableUseCmd.Flags().String("form", "", "set the target of this form instead of your default")
	airtableUseCmd.MarkFlagRequired("base")
	airtableUseCmd.MarkFlagRequired("table")

	airtableCmd.AddCommand(airtableConnectCmd)
	airtableCmd.AddCommand(airtableStatusCmd)
	airtableCmd.AddCommand(airtableBasesCmd)
	airtableCmd.AddCommand(airtableTablesCmd)
	airtableCmd.AddCommand(airtableUseCmd)
	airtableCmd.AddCommand(airtableDisconnectCmd)
	rootCmd.AddCommand(airtableCmd)
}
