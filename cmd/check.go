package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/starforge-mobile/datasync/updater"
)

var checkForce bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Query the release store for a newer dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build()
		if err != nil {
			return err
		}
		result, err := c.checker.Check(cmd.Context(), checkForce)
		if err != nil {
			return err
		}
		switch result.State {
		case updater.StateHasUpdate:
			fmt.Printf("update available: db %s (local %s), icons v%d (local v%d)\n",
				result.Remote.Version, result.Current.Version,
				result.Remote.IconVersion, result.Current.IconVersion)
		default:
			fmt.Printf("already current: db %s, icons v%d\n",
				result.Current.Version, result.Current.IconVersion)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkForce, "force", false, "bypass the check cooldown")
	rootCmd.AddCommand(checkCmd)
}
