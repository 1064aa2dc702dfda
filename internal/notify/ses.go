package notify

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/bastionhq/bastion/internal/models"
)

// AlertNotifier delivers high-severity security alerts to a human channel.
// Delivery is best-effort; callers never fail an operation over a
// notification error.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *models.SecurityAlert) error
}

// SESAlertNotifier emails alert summaries via AWS SES
type SESAlertNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewSESAlertNotifier creates a new SES-backed alert notifier
func NewSESAlertNotifier(region, fromAddress, toAddress string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// NotifyAlert sends a plain-text alert summary
func (n *SESAlertNotifier) NotifyAlert(ctx context.Context, alert *models.SecurityAlert) error {
	subject := fmt.Sprintf("[%s] security alert: %s", alert.Severity, alert.AlertType)

	textBody := fmt.Sprintf(`A security alert was raised and requires review.

Alert type:      %s
Severity:        %s
Identifier type: %s
Reason:          %s
Raised at:       %s

Review it via the admin alerts endpoint.
`, alert.AlertType, alert.Severity, alert.IdentifierType, alert.Reason, alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send alert notification via SES",
			slog.String("alert_type", alert.AlertType),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert notification: %w", err)
	}

	n.logger.Info("alert notification sent",
		slog.String("alert_type", alert.AlertType),
		slog.String("message_id", *result.MessageId))

	return nil
}
