package publish

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Slack posts status text to the public channel and uploads every take to
// the private channel, public takes to both.
type Slack struct {
	api     slackAPI
	public  string
	private string
}

func NewSlack(token, publicChannel, privateChannel string) *Slack {
	return &Slack{api: slack.New(token), public: publicChannel, private: privateChannel}
}

func (s *Slack) PostText(ctx context.Context, text string) error {
	if s.public == "" {
		return nil
	}
	_, _, err := s.api.PostMessageContext(ctx, s.public, slack.MsgOptionText(text, false))
	return errors.Wrapf(err, "could not post to %v", s.public)
}

func (s *Slack) Upload(ctx context.Context, name string, data []byte, public bool) error {
	channel := s.private
	if public {
		channel = s.public
	}
	if channel == "" {
		return nil
	}
	_, err := s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channel,
		Reader:   bytes.NewReader(data),
		FileSize: len(data),
		Filename: name,
		Title:    name,
	})
	return errors.Wrapf(err, "could not upload %v to %v", name, channel)
}
