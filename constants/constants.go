package constants

import (
	"os"
	"time"
)

func GetTakesDir() string {
	return os.Getenv("TAKES_DIR")
}

func GetConfigPath() string {
	return os.Getenv("PIANOBOT_CONFIG")
}

func GetMidiPortName() string {
	return os.Getenv("MIDI_PORT_NAME")
}

func GetListenAddr() string {
	return os.Getenv("LISTEN_ADDR")
}

func GetSlackAPIToken() string {
	return os.Getenv("SLACK_API_TOKEN")
}

func GetSlackChannelPublic() string {
	return os.Getenv("SLACK_CHANNEL_PUBLIC")
}

func GetSlackChannelPrivate() string {
	return os.Getenv("SLACK_CHANNEL_PRIVATE")
}

func GetS3Bucket() string {
	return os.Getenv("S3_BUCKET")
}

func GetAWSRegion() string {
	return os.Getenv("AWS_REGION")
}

// e.g. http://localhost:8000 for a local dynamodb
func GetAWSEndpoint() string {
	return os.Getenv("AWS_ENDPOINT")
}

func GetDynamoDBTable() string {
	return os.Getenv("DYNAMODB_TABLE")
}

func IsDebug() bool {
	v := os.Getenv("DEBUG")
	return v != "" && v != "0" && v != "false"
}

// 0..119, anything above is ignored by the keyboard
const NumberOfPianoKeys = 120

const DefaultBPM = 120
const DefaultTicksPerBeat = 480

const RecordingEndTimeout = 15 * time.Second
const RecordingRearmTimeout = 3 * time.Minute
const ActiveSenseTimeout = 3 * time.Second
const ReconnectInterval = 2 * time.Second

const TakePrefix = "piano"
const TakeTimeLayout = "20060102150405"

// enough for a few seconds of very dense playing before Push starts blocking
const QueueSize = 1024
