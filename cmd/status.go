package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/starforge-mobile/datasync/dataset/resolver"
	"github.com/starforge-mobile/datasync/dbprobe"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the authoritative dataset version per artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build()
		if err != nil {
			return err
		}
		eff := c.res.Effective()
		fmt.Printf("database: %s (%s)\n", eff.Version, c.res.Authority(resolver.SubtreeDataset))
		fmt.Printf("icons:    v%d (%s)\n", eff.IconVersion, c.res.Authority(resolver.SubtreeIcons))
		fmt.Printf("released: %s\n", eff.ReleaseDate)

		if path, _, err := c.res.ResolvePath(resolver.ResourceDB, "universe.sqlite"); err == nil {
			if info, err := dbprobe.Probe(path); err == nil {
				fmt.Printf("db file:  %s (%d tables", path, info.Tables)
				if info.SchemaVersion != "" {
					fmt.Printf(", schema %s", info.SchemaVersion)
				}
				fmt.Println(")")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
