package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer is the narrow delivery collaborator the identity core consumes.
// Everything else about mail (rendering, transport, retries) lives behind
// it.
type Mailer interface {
	Send(ctx context.Context, to, subject, templateName string, data map[string]string) error
}

// Mail template names
const (
	MailTemplateActivationCode  = "activation_code"
	MailTemplateTwofaCode       = "twofa_code"
	MailTemplateResetCode       = "password_reset_code"
	MailTemplatePasswordChanged = "password_changed"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "activation_code"}}Hello {{.Name}},

Your account activation code is {{.Code}}. It expires in 5 minutes.

If you did not create this account you can ignore this message.{{end}}

{{define "twofa_code"}}Hello {{.Name}},

Your login verification code is {{.Code}}. It expires in 5 minutes.

If you did not try to log in, change your password now.{{end}}

{{define "password_reset_code"}}Hello {{.Name}},

Your password reset code is {{.Code}}. It expires in 5 minutes.

If you did not request a reset you can ignore this message.{{end}}

{{define "password_changed"}}Hello {{.Name}},

Your password was just changed and all of your devices were signed out.

If this was not you, contact support immediately.{{end}}
`))

// SESMailer delivers templated mail through AWS SES.
type SESMailer struct {
	client      *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewSESMailer(region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, to, subject, templateName string, data map[string]string) error {
	var body bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("failed to render mail template %q: %w", templateName, err)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body.String()),
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send mail via SES",
			slog.String("template", templateName),
			slog.Any("error", err))
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.logger.Info("mail sent",
		slog.String("template", templateName),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
