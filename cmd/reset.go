package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the downloaded dataset and revert to the baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build()
		if err != nil {
			return err
		}
		if err := c.res.Reset(); err != nil {
			return err
		}
		c.checker.ClearCooldown()
		fmt.Println("local dataset removed, baseline is authoritative")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
