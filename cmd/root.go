package cmd

import (
	"log/slog"
	"os"

	"github.com/jsphweid/pianobot/config"
	"github.com/jsphweid/pianobot/constants"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	logger     = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "pianobot",
	Short: "Records whatever is played on the piano",
	Long: `pianobot listens to a MIDI piano, records takes while someone is
playing and publishes each finished take.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug || constants.IsDebug())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $PIANOBOT_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
}

// initLogger routes slog and the stdlib log package through one handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
