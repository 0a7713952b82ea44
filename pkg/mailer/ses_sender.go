package mailer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailSender is the one outbound channel of the signing workflow. It is
// constructed once in main and injected everywhere it is needed.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type sesSender struct {
	client *sesv2.Client
	from   string
}

func NewSESSender(cfg aws.Config, from string) EmailSender {
	return &sesSender{client: sesv2.NewFromConfig(cfg), from: from}
}

func (s *sesSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			},
		},
	})
	return err
}
