package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/nimbuslocal/nimbus/internal/api"
	"github.com/nimbuslocal/nimbus/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an instance of the Nimbus emulator",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNimbus(cmd)
	},
}

func runNimbus(_ *cobra.Command) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	server := api.New(cfg)
	defer server.Close()

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", server.MetricsHandler())

			metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port)
			log.Info().Str("address", metricsAddr).Msg("Metrics server started")

			if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().
		Str("address", addr).
		Str("region", cfg.AWS.Region).
		Str("account_id", cfg.AWS.AccountID).
		Msg("Server started")

	return http.ListenAndServe(addr, mux)
}
