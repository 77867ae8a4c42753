package cmd

import (
	"github.com/spf13/cobra"
	"github.com/starforge-mobile/datasync/server"
	"github.com/starforge-mobile/datasync/updater"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a daemon: HTTP status/update API, event stream, scheduled checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := buildResolver()
		if err != nil {
			return err
		}
		client, checker, err := buildChecker(res)
		if err != nil {
			return err
		}
		srv := server.New(server.Options{
			Listen:        cfg.Listen,
			AutoCheckCron: cfg.AutoCheckCron,
		}, res, checker, nil)
		// The pipeline streams its events to the server's websocket hub.
		srv.AttachPipeline(updater.NewPipeline(client, res, checker, updater.WithSink(srv.Hub())))
		return srv.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&cfg.Listen, "listen", "127.0.0.1:8420", "daemon listen address")
	serveCmd.Flags().StringVar(&cfg.AutoCheckCron, "auto-check", "@every 30m", "cron spec for scheduled update runs; empty disables")
	rootCmd.AddCommand(serveCmd)
}
