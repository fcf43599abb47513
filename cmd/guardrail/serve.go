package main

import (
	"os"

	"github.com/artpar/guardrail/bootstrap"
	"github.com/artpar/guardrail/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the guardrail engine",
	Long: `Start the guardrail HTTP server.

The server will:
  - Load configuration from guardrail.yaml (or --config)
  - Or load configuration from GUARDRAIL_* environment variables
  - Open the sqlite database and run migrations
  - Serve the guardrails and unexplained-costs APIs
  - Run the background alert evaluation loop

Environment variables (for Docker deployments):
  GUARDRAIL_DATABASE_DSN  - Database path (default: guardrail.db)
  GUARDRAIL_SERVER_PORT   - Server port (default: 8080)
  GUARDRAIL_LOG_LEVEL     - Log level: debug, info, warn, error

Examples:
  guardrail serve
  guardrail serve --config /etc/guardrail/config.yaml
  guardrail serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var holder *config.Holder
	if _, err := os.Stat(cfgFile); err == nil {
		holder, err = config.NewHolder(cfgFile, logger)
		if err != nil {
			return err
		}
		if hotReload {
			if err := holder.WatchFile(); err != nil {
				logger.Warn().Err(err).Msg("config file watching disabled")
			}
			holder.WatchSignals()
		}
	} else {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return err
		}
		holder = config.NewStaticHolder(cfg, logger)
	}

	app, err := bootstrap.New(holder)
	if err != nil {
		return err
	}

	return app.Run()
}
