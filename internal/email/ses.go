package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

// Mailer delivers verification codes
type Mailer interface {
	SendVerificationCode(ctx context.Context, toEmail, code string) error
}

// SESMailer sends mail through AWS SES
type SESMailer struct {
	client    *ses.Client
	fromEmail string
	fromName  string
}

// NewSESMailer creates a mailer using AWS SES
func NewSESMailer(region, fromEmail, fromName string) (*SESMailer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		client:    ses.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
	}, nil
}

// SendVerificationCode sends a 6-digit verification code email
func (m *SESMailer) SendVerificationCode(ctx context.Context, toEmail, code string) error {
	subject := "【Moments】邮箱验证码"
	htmlBody := fmt.Sprintf(`
		<div style="max-width:600px;margin:0 auto;padding:20px;font-family:sans-serif;">
			<h2>邮箱验证码</h2>
			<p>你的验证码是：</p>
			<p style="font-size:28px;font-weight:bold;letter-spacing:6px;">%s</p>
			<p>验证码 10 分钟内有效，请勿泄露给他人。</p>
			<hr>
			<p style="color:#999;font-size:12px;">如果这不是你的操作，请忽略本邮件。</p>
		</div>
	`, code)
	textBody := fmt.Sprintf("你的验证码是：%s，10 分钟内有效，请勿泄露给他人。", code)

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}

// LogMailer logs codes instead of sending them; used when SES is not
// configured (local development)
type LogMailer struct{}

// SendVerificationCode logs the code
func (LogMailer) SendVerificationCode(_ context.Context, toEmail, code string) error {
	pkglogger.GetLogger().Info().
		Str("email", toEmail).
		Str("code", code).
		Msg("verification code (SES not configured, log only)")
	return nil
}
