package main

import (
	"log/slog"
	"time"

	"github.com/JonMunkholm/cytodx/internal/config"
	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/diagnosis"
	"github.com/JonMunkholm/cytodx/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cliSession keys the orchestrators of a single invocation.
const cliSession = "cli"

// rootOptions are the persistent flags plus the loaded configuration.
type rootOptions struct {
	serviceURL string
	timeout    time.Duration
	logLevel   string
	jsonOut    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "cytodx",
		Short: "Cytology diagnosis client",
		Long: `cytodx checks cytology measurement files against the nine-feature schema
and sends records to the diagnosis service.

Configuration comes from the environment (and a .env file when present);
flags override it. Run "cytodx template" for a starting CSV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.serviceURL, "url", "", "diagnosis service base URL (default from DIAGNOSIS_SERVICE_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "per-call timeout (default from DIAGNOSIS_TIMEOUT)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newTemplateCmd(),
		newValidateCmd(opts),
		newSingleCmd(opts),
		newBatchCmd(opts),
	)
	return root
}

// load reads .env and the environment, then applies flag overrides.
func (o *rootOptions) load(cmd *cobra.Command) error {
	// Load keeps variables that are already set, unlike the server.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.serviceURL != "" {
		cfg.Diagnosis.ServiceURL = o.serviceURL
	}
	if o.timeout > 0 {
		cfg.Diagnosis.Timeout = o.timeout
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	o.cfg = cfg

	// Results go to stdout; logs stay on stderr and are quiet by default.
	level := cfg.Logging.Level
	if o.logLevel == "" {
		level = "warn"
	}
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, cfg.Logging.Format))
	return nil
}

// service builds a Service for one invocation. No audit, no shared limiter.
func (o *rootOptions) service(policy core.ValidationPolicy) *core.Service {
	client := diagnosis.New(o.cfg.Diagnosis.ServiceURL,
		diagnosis.WithPaths(o.cfg.Diagnosis.SinglePath, o.cfg.Diagnosis.BatchPath),
	)
	return core.NewService(client, nil, nil, core.ServiceConfig{
		CallTimeout:      o.cfg.Diagnosis.Timeout,
		ValidationPolicy: policy,
		MaxUploadBytes:   o.cfg.Upload.MaxFileSize,
	})
}
