package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/config"
	"github.com/marcus/formsync/internal/output"
)

var signupCmd = &cobra.Command{
	Use:     "signup",
	Short:   "Create an account and save its API key",
	GroupID: "account",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		if strings.TrimSpace(email) == "" {
			return fmt.Errorf("--email is required")
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		resp, err := c.Signup(email, name)
		if err != nil {
			return fmt.Errorf("signup: %w", err)
		}

		dir, err := config.Dir()
		if err != nil {
			return err
		}
		err = config.Update(dir, func(cfg *config.Config) error {
			cfg.ServerURL = c.BaseURL
			cfg.APIKey = resp.APIKey
			cfg.Email = resp.User.Email
			cfg.UserID = resp.User.ID
			return nil
		})
		if err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		if jsonMode() {
			return output.JSON(resp)
		}
		output.Success("Signed up as %s", resp.User.Email)
		fmt.Printf("API key saved to %s\n", dir)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the signed-in account",
	GroupID: "account",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		me, err := c.Me()
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(me)
		}

		fmt.Printf("Email:    %s\n", me.Email)
		if me.Name != "" {
			fmt.Printf("Name:     %s\n", me.Name)
		}
		fmt.Printf("Server:   %s\n", c.BaseURL)
		airtable := "not connected"
		if me.AirtableConnected {
			airtable = "connected"
		}
		fmt.Printf("Airtable: %s\n", airtable)
		if me.AirtableBaseID != "" {
			fmt.Printf("Default:  %s / %s\n", me.AirtableBaseID, me.AirtableTableID)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Read or change CLI settings",
	GroupID: "account",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}

		if jsonMode() {
			return output.JSON(cfg)
		}
		for _, k := range config.Keys() {
			v, _ := cfg.Get(k)
			if k == "api_key" && len(v) > 12 {
				v = v[:12] + "..."
			}
			fmt.Printf("%-10s %s\n", k, v)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long:  "Change one setting. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		if err := config.Update(dir, func(cfg *config.Config) error {
			return cfg.Set(args[0], args[1])
		}); err != nil {
			return err
		}
		output.Success("Set %s", args[0])
		return nil
	},
}

func init() {
	signupCmd.Flags().String("email", "", "account email (required)")
	signupCmd.Flags().String("name", "", "display name")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(configCmd)
}
