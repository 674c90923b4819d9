package alerts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// EmailNotifier mails action-required events to the operator inbox via
// AWS SES.
type EmailNotifier struct {
	client *ses.Client
	from   string
	to     string
	logger *zap.Logger
}

type EmailConfig struct {
	Region    string
	FromEmail string
	ToEmail   string
}

func NewEmailNotifier(ctx context.Context, cfg EmailConfig, logger *zap.Logger) (*EmailNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &EmailNotifier{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}, nil
}

func (e *EmailNotifier) Notify(ctx context.Context, event Event) error {
	subject := fmt.Sprintf("[syndicate] %s: %s", event.Kind, event.Platform)
	body := fmt.Sprintf(
		"Event:    %s\nPlatform: %s\nUser:     %s\nAccount:  %s\nPost:     %s\n\n%s\n",
		event.Kind, event.Platform, event.UserID, event.AccountID, event.PostID, event.Detail,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(e.from),
		Destination: &types.Destination{
			ToAddresses: []string{e.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := e.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	e.logger.Info("alert email sent",
		zap.String("kind", string(event.Kind)),
		zap.String("to", e.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// SupportsKind limits email to events a human must act on; routine
// success events would drown the inbox.
func (e *EmailNotifier) SupportsKind(kind Kind) bool {
	return actionRequired(kind)
}
