package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jsphweid/pianobot/hotkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PIANOBOT_CONFIG", "MIDI_PORT_NAME", "TAKES_DIR", "LISTEN_ADDR",
		"SLACK_API_TOKEN", "SLACK_CHANNEL_PUBLIC", "SLACK_CHANNEL_PRIVATE",
		"AWS_REGION", "AWS_ENDPOINT", "S3_BUCKET", "DYNAMODB_TABLE", "DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "pianobot.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(15*time.Second, cfg.IdleTimeout)
	assert.Equal(3*time.Minute, cfg.RearmDelay)
	assert.Equal(3*time.Second, cfg.LivenessTimeout)
	assert.Equal(2*time.Second, cfg.ReconnectInterval)
	assert.Equal(120.0, cfg.BPM)
	assert.Equal(uint16(480), cfg.TicksPerBeat)
	assert.Equal("./takes", cfg.TakesDir)
	assert.Equal([]hotkey.Binding{
		{Combo: []uint8{105, 107, 108}, Action: hotkey.ActionArmPublic},
		{Combo: []uint8{102, 104, 106}, Action: hotkey.ActionDisarm},
	}, cfg.Hotkeys)
	assert.False(cfg.SlackEnabled())
	assert.False(cfg.Debug)
}

func TestFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
midi_port: "Clavinova"
idle_timeout: 30s
hotkeys:
  - combo: [21, 22]
    action: stop
slack:
  token: xoxb-1
  private_channel: C123
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("Clavinova", cfg.MidiPort)
	assert.Equal(30*time.Second, cfg.IdleTimeout)
	assert.Equal(3*time.Minute, cfg.RearmDelay)
	assert.Equal([]hotkey.Binding{{Combo: []uint8{21, 22}, Action: hotkey.ActionStop}}, cfg.Hotkeys)
	assert.True(cfg.SlackEnabled())
}

func TestConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIANOBOT_CONFIG", writeFile(t, "bpm: 90\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.BPM)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIDI_PORT_NAME", "USB MIDI")
	t.Setenv("S3_BUCKET", "takes-bucket")
	t.Setenv("DEBUG", "1")
	cfg, err := Load(writeFile(t, `midi_port: "Clavinova"`))
	require.NoError(t, err)

	assert.Equal(t, "USB MIDI", cfg.MidiPort)
	assert.Equal(t, "takes-bucket", cfg.AWS.Bucket)
	assert.True(t, cfg.Debug)
}

func TestInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "midi_prot: x\n",
		"empty combo":      "hotkeys:\n  - combo: []\n    action: arm\n",
		"key out of range": "hotkeys:\n  - combo: [120]\n    action: arm\n",
		"unknown action":   "hotkeys:\n  - combo: [1]\n    action: explode\n",
		"zero idle":        "idle_timeout: 0s\n",
		"negative bpm":     "bpm: -1\n",
		"no port":          "midi_port: \"\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, content))
			assert.Error(t, err)
		})
	}
}

func TestUnknownActionIsSentinel(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "hotkeys:\n  - combo: [1]\n    action: explode\n"))
	assert.ErrorIs(t, err, hotkey.ErrUnknownAction)
}

func TestMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
