// Package config loads settings from the built-in defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"time"

	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/hotkey"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultYaml []byte

type Config struct {
	MidiPort          string           `yaml:"midi_port"`
	Hotkeys           []hotkey.Binding `yaml:"hotkeys"`
	IdleTimeout       time.Duration    `yaml:"idle_timeout"`
	RearmDelay        time.Duration    `yaml:"rearm_delay"`
	LivenessTimeout   time.Duration    `yaml:"liveness_timeout"`
	ReconnectInterval time.Duration    `yaml:"reconnect_interval"`
	BPM               float64          `yaml:"bpm"`
	TicksPerBeat      uint16           `yaml:"ticks_per_beat"`
	Listen            string           `yaml:"listen"`
	TakesDir          string           `yaml:"takes_dir"`
	Slack             Slack            `yaml:"slack"`
	AWS               AWS              `yaml:"aws"`
	Debug             bool             `yaml:"debug"`
}

type Slack struct {
	Token          string `yaml:"token"`
	PublicChannel  string `yaml:"public_channel"`
	PrivateChannel string `yaml:"private_channel"`
}

type AWS struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Table    string `yaml:"table"`
}

func Default() *Config {
	var cfg Config
	if err := decode(defaultYaml, &cfg); err != nil {
		panic("Could not parse built-in config because: " + err.Error())
	}
	return &cfg
}

// Load reads the defaults, then path (or PIANOBOT_CONFIG when path is
// empty) if set, then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = constants.GetConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "could not read config")
		}
		if err := decode(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "could not parse %v", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fields missing from data keep their current value. A hotkeys list
// replaces the current one as a whole.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Config) applyEnv() {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.MidiPort, constants.GetMidiPortName())
	set(&c.TakesDir, constants.GetTakesDir())
	set(&c.Listen, constants.GetListenAddr())
	set(&c.Slack.Token, constants.GetSlackAPIToken())
	set(&c.Slack.PublicChannel, constants.GetSlackChannelPublic())
	set(&c.Slack.PrivateChannel, constants.GetSlackChannelPrivate())
	set(&c.AWS.Region, constants.GetAWSRegion())
	set(&c.AWS.Endpoint, constants.GetAWSEndpoint())
	set(&c.AWS.Bucket, constants.GetS3Bucket())
	set(&c.AWS.Table, constants.GetDynamoDBTable())
	if constants.IsDebug() {
		c.Debug = true
	}
}

func (c *Config) Validate() error {
	if c.MidiPort == "" {
		return errors.New("midi_port must be set")
	}
	for _, b := range c.Hotkeys {
		if err := hotkey.ValidateCombo(b.Combo); err != nil {
			return errors.Wrapf(err, "hotkey %q", b.Action)
		}
		if !hotkey.IsAction(b.Action) {
			return errors.Wrapf(hotkey.ErrUnknownAction, "%q", b.Action)
		}
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"idle_timeout", c.IdleTimeout},
		{"rearm_delay", c.RearmDelay},
		{"liveness_timeout", c.LivenessTimeout},
		{"reconnect_interval", c.ReconnectInterval},
	}
	for _, v := range durations {
		if v.d <= 0 {
			return errors.Errorf("%v must be positive, got %v", v.name, v.d)
		}
	}
	if c.BPM <= 0 {
		return errors.Errorf("bpm must be positive, got %v", c.BPM)
	}
	if c.TicksPerBeat == 0 {
		return errors.New("ticks_per_beat must be positive")
	}
	return nil
}

// SlackEnabled is true when a token and at least one channel are set.
func (c *Config) SlackEnabled() bool {
	return c.Slack.Token != "" && (c.Slack.PublicChannel != "" || c.Slack.PrivateChannel != "")
}
