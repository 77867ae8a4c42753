// Package cmd implements the datasync command line: check, update, reset,
// status and serve.
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/starforge-mobile/datasync/cmd/flags"
	"github.com/starforge-mobile/datasync/dataset/resolver"
	"github.com/starforge-mobile/datasync/remote"
	"github.com/starforge-mobile/datasync/updater"
	"github.com/starforge-mobile/datasync/utils"
)

var cfg = &flags.Config{}

var rootCmd = &cobra.Command{
	Use:           "datasync",
	Short:         "Keeps the companion app's reference dataset in sync with published releases",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.Endpoint, "endpoint", envOr("DATASYNC_ENDPOINT", ""), "release store base URL")
	pf.StringVar(&cfg.DataRoot, "data-root", envOr("DATASYNC_DATA_ROOT", "./data"), "writable root for downloaded datasets")
	pf.StringVar(&cfg.BaselineRoot, "baseline-root", envOr("DATASYNC_BASELINE_ROOT", "./baseline"), "root of the baked-in baseline dataset")
	pf.StringVar(&cfg.ClientVersion, "client-version", utils.ClientVersion, "client version used for release eligibility")
	pf.StringVar(&cfg.Policy, "version-policy", "exact", "minimum-client-version policy: exact or minimum")
	pf.DurationVar(&cfg.Cooldown, "check-cooldown", updater.DefaultCooldown, "suppress repeat checks for this long after a no-update answer")
}

// Execute runs the CLI and maps failures to exit codes: 0 success or already
// current, 1 transport/integrity failure, 2 single-flight violation.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, updater.ErrConcurrentRun) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// components wires the constructed-once object graph for one invocation.
type components struct {
	res      *resolver.Resolver
	client   *remote.Client
	checker  *updater.Checker
	pipeline *updater.Pipeline
}

func buildResolver() (*resolver.Resolver, error) {
	return resolver.NewFromDisk(cfg.BaselineRoot, cfg.DataRoot)
}

func buildChecker(res *resolver.Resolver) (*remote.Client, *updater.Checker, error) {
	if cfg.Endpoint == "" {
		return nil, nil, fmt.Errorf("--endpoint (or DATASYNC_ENDPOINT) is required")
	}
	client := remote.NewClient(cfg.Endpoint, cfg.ClientVersion, remote.ParsePolicy(cfg.Policy), &http.Client{Timeout: 60 * time.Second})
	return client, updater.NewChecker(client, res, cfg.Cooldown), nil
}

func build(opts ...updater.Option) (*components, error) {
	res, err := buildResolver()
	if err != nil {
		return nil, err
	}
	client, checker, err := buildChecker(res)
	if err != nil {
		return nil, err
	}
	pipeline := updater.NewPipeline(client, res, checker, opts...)
	return &components{res: res, client: client, checker: checker, pipeline: pipeline}, nil
}
