package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/output"
	"github.com/marcus/formsync/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the version, optionally checking for a newer release",
	GroupID: "account",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")
		if !check {
			if jsonMode() {
				return output.JSON(map[string]string{"version": currentVersion()})
			}
			fmt.Println("formsync " + currentVersion())
			return nil
		}

		res, err := version.Check(currentVersion())
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		if jsonMode() {
			return output.JSON(res)
		}
		fmt.Println("formsync " + res.CurrentVersion)
		switch {
		case version.IsDevelopmentVersion(res.CurrentVersion):
			output.Info("development build, not checking for updates")
		case res.HasUpdate:
			output.Warning("%s is available", res.LatestVersion)
			if c := version.UpdateCommand(res.LatestVersion); c != "" {
				fmt.Println("  " + c)
			}
		default:
			output.Success("up to date")
		}
		return nil
	},
}

func currentVersion() string {
	if v := rootCmd.Version; v != "" {
		return v
	}
	return "dev"
}

func init() {
	versionCmd.Flags().Bool("check", false, "ask GitHub for the latest release")
	rootCmd.AddCommand(versionCmd)
}
