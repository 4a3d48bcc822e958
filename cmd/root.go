package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/client"
	"github.com/marcus/formsync/internal/config"
	"github.com/marcus/formsync/internal/output"
)

// SetVersion sets the version string
func SetVersion(v string) {
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "formsync",
	Short: "Build forms with conditional fields and sync submissions to Airtable",
	Long: `formsync - build forms whose fields show or hide based on earlier answers,
fill them from the terminal, and sync every submission to an Airtable table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints err in the selected output mode. API errors keep
// their code and per-field messages.
func reportError(err error) {
	var apiErr *client.APIError
	if jsonMode() {
		if errors.As(err, &apiErr) {
			output.JSONError(apiErr.Code, apiErr.Message, apiErr.Fields)
		} else {
			output.JSONError("error", err.Error(), nil)
		}
		return
	}

	switch {
	case errors.Is(err, client.ErrUnauthorized):
		output.Error("not signed in or API key rejected (run: formsync signup, or formsync config set api_key <key>)")
	case errors.As(err, &apiErr) && len(apiErr.Fields) > 0:
		output.Error("%s", apiErr.Message)
		for _, line := range strings.Split(apiErr.Error(), "\n")[1:] {
			fmt.Fprintln(os.Stderr, line)
		}
	default:
		output.Error("%v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "server URL (overrides FORMSYNC_SERVER and config)")
	rootCmd.PersistentFlags().String("api-key", "", "API key (overrides FORMSYNC_API_KEY and config)")
	rootCmd.PersistentFlags().Bool("json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "forms", Title: "Form Commands:"},
		&cobra.Group{ID: "data", Title: "Submission Commands:"},
		&cobra.Group{ID: "account", Title: "Account Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("account")
	rootCmd.SetCompletionCommandGroupID("account")
}

func jsonMode() bool {
	v, _ := rootCmd.PersistentFlags().GetBool("json")
	return v
}

// loadConfig reads the CLI config file.
func loadConfig() (string, *config.Config, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return "", nil, err
	}
	return dir, cfg, nil
}

// newClient builds an API client. Flags win over the environment, which
// wins over the config file.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	serverURL := cfg.ResolveServerURL()
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		serverURL = v
	}
	apiKey := cfg.ResolveAPIKey()
	if v, _ := cmd.Flags().GetString("api-key"); v != "" {
		apiKey = v
	}
	return client.New(serverURL, apiKey), nil
}

// newAuthedClient is newClient for commands that need an API key.
func newAuthedClient(cmd *cobra.Command) (*client.Client, error) {
	c, err := newClient(cmd)
	if err != nil {
		return nil, err
	}
	if c.APIKey == "" {
		return nil, errors.New("no API key configured (run: formsync signup)")
	}
	return c, nil
}
