package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// TopicNotifier publishes every event to an SNS topic so downstream
// consumers (in-app notification service, analytics) can subscribe by
// message attribute.
type TopicNotifier struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

type TopicConfig struct {
	Region   string
	TopicARN string
}

func NewTopicNotifier(ctx context.Context, cfg TopicConfig, logger *zap.Logger) (*TopicNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &TopicNotifier{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.TopicARN,
		logger:   logger,
	}, nil
}

func (t *TopicNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Attributes let subscribers filter by kind/platform without parsing
	// the body.
	attributes := map[string]types.MessageAttributeValue{
		"kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(event.Kind)),
		},
	}
	if event.Platform != "" {
		attributes["platform"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(event.Platform),
		}
	}

	result, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(t.topicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: attributes,
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	t.logger.Debug("alert published to topic",
		zap.String("kind", string(event.Kind)),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// SupportsKind accepts everything; topic subscribers do their own filtering.
func (t *TopicNotifier) SupportsKind(kind Kind) bool { return true }
