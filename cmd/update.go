package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/starforge-mobile/datasync/updater"
)

var updateForce bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download, verify and commit the newest eligible dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build()
		if err != nil {
			return err
		}
		report, err := c.pipeline.Run(cmd.Context(), updateForce)
		if err != nil {
			return err
		}
		for _, res := range report.Results {
			switch {
			case res.Err != nil:
				fmt.Printf("%s: failed: %v\n", res.Kind, res.Err)
			case res.Skipped:
				fmt.Printf("%s: unchanged\n", res.Kind)
			default:
				fmt.Printf("%s: updated\n", res.Kind)
			}
		}
		outcome := report.Outcome()
		fmt.Println("outcome:", outcome)
		if outcome == updater.OutcomeFailed || outcome == updater.OutcomePartial {
			return fmt.Errorf("update finished with outcome %s", outcome)
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "bypass the check cooldown")
	rootCmd.AddCommand(updateCmd)
}
