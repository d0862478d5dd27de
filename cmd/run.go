package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsphweid/pianobot/config"
	"github.com/jsphweid/pianobot/db"
	"github.com/jsphweid/pianobot/device"
	"github.com/jsphweid/pianobot/feedback"
	"github.com/jsphweid/pianobot/file"
	"github.com/jsphweid/pianobot/ingest"
	"github.com/jsphweid/pianobot/liveness"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/model"
	"github.com/jsphweid/pianobot/publish"
	"github.com/jsphweid/pianobot/server"
	"github.com/jsphweid/pianobot/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errDeviceTimedOut = errors.New("midi device stopped sending active sense")

func init() {
	runCmd.Flags().String("port", "", "MIDI port name to connect to")
	runCmd.Flags().String("listen", "", "address for the status server, empty string disables it")
	runCmd.Flags().String("takes-dir", "", "directory to keep takes in, empty string disables it")
	runCmd.Flags().Bool("public", false, "make the first take public")
	rootCmd.AddCommand(runCmd)
}

// applyFlags overrides cfg with the flags that were set explicitly.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	if fs.Changed("port") {
		if cfg.MidiPort, err = fs.GetString("port"); err != nil {
			return err
		}
	}
	if fs.Changed("listen") {
		if cfg.Listen, err = fs.GetString("listen"); err != nil {
			return err
		}
	}
	if fs.Changed("takes-dir") {
		if cfg.TakesDir, err = fs.GetString("takes-dir"); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Listens to the piano and records takes",
	Long: `Connects to the configured MIDI port and records a take whenever
someone plays. Exits with an error if the device goes quiet so that a
supervisor can restart it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyFlags(cmd.Flags(), cfg); err != nil {
			return err
		}
		public, _ := cmd.Flags().GetBool("public")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runBot(ctx, cfg, public)
	},
}

func buildPublisher(cfg *config.Config) (*publish.Publisher, *file.Dir, error) {
	opts := publish.Options{Log: logger}

	var takes *file.Dir
	if cfg.TakesDir != "" {
		takes = file.NewDir(cfg.TakesDir)
		opts.Stores = append(opts.Stores, takes)
	}
	if cfg.SlackEnabled() {
		opts.Notifier = publish.NewSlack(cfg.Slack.Token, cfg.Slack.PublicChannel, cfg.Slack.PrivateChannel)
	}
	if cfg.AWS.Bucket != "" || cfg.AWS.Table != "" {
		sess, err := db.NewSession(cfg.AWS.Region, cfg.AWS.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AWS.Bucket != "" {
			opts.Stores = append(opts.Stores, publish.NewS3(sess, cfg.AWS.Bucket, cfg.AWS.Prefix))
		}
		if cfg.AWS.Table != "" {
			opts.Index = db.NewFromSession(sess, cfg.AWS.Table)
		}
	}
	return publish.New(opts), takes, nil
}

func runBot(ctx context.Context, cfg *config.Config, public bool) error {
	logger.Info("pianobot starting",
		"port", cfg.MidiPort,
		"idle_timeout", cfg.IdleTimeout,
		"rearm_delay", cfg.RearmDelay,
		"hotkeys", len(cfg.Hotkeys),
	)

	dev, err := device.Open(logger)
	if err != nil {
		return err
	}
	pub, takes, err := buildPublisher(cfg)
	if err != nil {
		dev.Close()
		return err
	}
	player := feedback.New(dev.Send, logger)
	monitor := liveness.New(cfg.LivenessTimeout, logger)

	worker, err := ingest.New(ingest.Config{
		Session: session.Options{
			IdleTimeout: cfg.IdleTimeout,
			RearmDelay:  cfg.RearmDelay,
			Quantizer:   midi.Quantizer{BPM: cfg.BPM, TicksPerBeat: cfg.TicksPerBeat},
			Log:         logger,
		},
		Hotkeys: cfg.Hotkeys,
		Log:     logger,
	}, pub, player, monitor)
	if err != nil {
		dev.Close()
		return err
	}

	pub.Start()
	player.Start()
	worker.Start()
	defer func() {
		dev.Disconnect()
		monitor.Stop()
		worker.Shutdown()
		pub.Shutdown()
		player.Shutdown()
		dev.Close()
		logger.Info("pianobot stopped")
	}()

	arm := worker.Arm
	if public {
		arm = worker.ArmPublic
	}
	if err := arm(); err != nil {
		return err
	}

	push := func(ev model.Event) {
		if err := worker.Push(ev); err != nil {
			logger.Debug("run: dropping event", "event", ev, "err", err)
		}
	}
	if err := connect(ctx, dev, cfg, push); err != nil {
		return err
	}

	srvOpts := server.Options{
		Connected: dev.Connected,
		TimedOut:  monitor.TimedOut,
		Log:       logger,
	}
	if takes != nil {
		srvOpts.Takes = takes.Takes
	}
	srvErrs := make(chan error, 1)
	srvCtx, cancelSrv := context.WithCancel(ctx)
	defer cancelSrv()
	if cfg.Listen != "" {
		go func() {
			srvErrs <- server.New(worker, srvOpts).ListenAndServe(srvCtx, cfg.Listen)
		}()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("run: shutting down")
			return nil
		case err := <-worker.Errors():
			return errors.Wrap(err, "ingest failed")
		case err := <-srvErrs:
			return err
		case <-ticker.C:
			if monitor.TimedOut() {
				return errDeviceTimedOut
			}
			if !dev.Connected() {
				logger.Warn("run: device disconnected, reconnecting")
				if err := connect(ctx, dev, cfg, push); err != nil {
					return err
				}
			}
		}
	}
}

// connect retries until the port shows up or ctx is done.
func connect(ctx context.Context, dev *device.Device, cfg *config.Config, push func(model.Event)) error {
	for {
		err := dev.Connect(cfg.MidiPort, push)
		if err == nil {
			return nil
		}
		logger.Warn("run: could not connect", "port", cfg.MidiPort, "err", err, "retry_in", cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.ReconnectInterval):
		}
	}
}
