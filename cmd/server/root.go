package main

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/twincitiespublictelevision/pbs-partner/internal/config"
	"github.com/twincitiespublictelevision/pbs-partner/internal/logging"
)

var version = "dev"

var settings = config.New(afero.NewOsFs())

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Read settings from this file instead of searching for pbsbridge.yaml")

	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "Listen address")
	lo.Must0(settings.BindPFlag(config.ServerAddr, flags.Lookup("addr")))
	flags.String("engine", config.EngineHertz, "HTTP server: hertz or echo")
	lo.Must0(settings.BindPFlag(config.ServerEngine, flags.Lookup("engine")))
	flags.String("origin", "https://player.pbs.org", "Trusted player origin")
	lo.Must0(settings.BindPFlag(config.PlayerOrigin, flags.Lookup("origin")))
	flags.String("resume", config.BackendNone, "Resume store: none, bolt or redis")
	lo.Must0(settings.BindPFlag(config.ResumeBackend, flags.Lookup("resume")))
	flags.String("log-level", "info", "Log level")
	lo.Must0(settings.BindPFlag(config.LogLevel, flags.Lookup("log-level")))
	flags.Bool("log-json", false, "Log JSON lines")
	lo.Must0(settings.BindPFlag(config.LogJSON, flags.Lookup("log-json")))

	rootCmd.AddCommand(serveCmd, versionCmd, envCmd)
}

var rootCmd = &cobra.Command{
	Use:           "pbsbridge",
	Short:         "Remote control bridge for embedded PBS players",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(serveCmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and relay websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(settings, configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		log, err := logging.Setup(cfg.Log.Level, cfg.Log.JSON, os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		if err := serve(ctx, cfg, log); err != nil {
			log.Error().Err(err).Msg("server stopped")
			return err
		}
		log.Info().Msg("server stopped")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables read at startup",
	Run: func(cmd *cobra.Command, args []string) {
		for _, field := range config.Defaults {
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\t# %s\n", field.Env(), settings.Get(field.Key), field.Description)
		}
	},
}
