// Package flags holds the CLI configuration shared by all subcommands.
package flags

import "time"

// Config is built once from cobra flags and passed to the components
// explicitly; nothing else reads process-wide state.
type Config struct {
	Endpoint      string
	DataRoot      string
	BaselineRoot  string
	ClientVersion string
	Policy        string
	Cooldown      time.Duration

	// serve only
	Listen        string
	AutoCheckCron string
}
