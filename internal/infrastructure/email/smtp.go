package email

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/rs/zerolog"

	"github.com/simonpricept/client-billing/internal/core/ports"
	"github.com/simonpricept/client-billing/internal/core/token"
	"github.com/simonpricept/client-billing/internal/infrastructure/config"
)

// Password-setup links stay valid for a week; the recipient can always
// request a fresh one from an admin.
const passwordSetupTTL = 7 * 24 * time.Hour

// SMTPNotifier implements ports.Notifier over plain SMTP. Messages are
// simple HTML; anything fancier belongs in a template service upstream.
type SMTPNotifier struct {
	cfg     config.SMTPConfig
	tokens  *token.Service
	baseURL string
	log     zerolog.Logger
}

// NewSMTPNotifier builds a notifier. baseURL is the frontend origin links
// are built against.
func NewSMTPNotifier(cfg config.SMTPConfig, tokens *token.Service, baseURL string, log zerolog.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, tokens: tokens, baseURL: baseURL, log: log}
}

func (n *SMTPNotifier) SendInvitation(ctx context.Context, email, rawToken string, terms ports.InvitationTerms) error {
	link := fmt.Sprintf("%s/onboarding?token=%s", n.baseURL, rawToken)
	proration := "Your first payment will be prorated to your start date."
	if !terms.Prorate {
		proration = "Your first payment will be the full monthly amount."
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>You have been invited to set up your membership at "+
			"&pound;%s per month, billed on day %d of each month. %s</p>"+
			"<p><a href=%q>Complete your setup</a></p>"+
			"<p>This link expires on %s.</p>",
		terms.Name,
		terms.Price.StringFixed(2),
		terms.BillingDay,
		proration,
		link,
		terms.ExpiresAt.Format("2 January 2006"),
	)
	return n.send(ctx, email, "Complete Your Subscription Setup", body)
}

func (n *SMTPNotifier) SendConfirmation(ctx context.Context, email string, details ports.ConfirmationDetails) error {
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Your membership is active. Your first payment of &pound;%s has "+
			"been taken; from %s you will be billed &pound;%s monthly.</p>",
		details.Name,
		details.FirstCharge.StringFixed(2),
		details.NextBillingDate.Format("2 January 2006"),
		details.MonthlyPrice.StringFixed(2),
	)
	return n.send(ctx, email, "Welcome - Your Membership Is Active", body)
}

func (n *SMTPNotifier) SendPasswordSetup(ctx context.Context, email string) error {
	setupToken, err := n.tokens.IssuePasswordSetup(email, passwordSetupTTL)
	if err != nil {
		return fmt.Errorf("issue password setup token: %w", err)
	}
	link := fmt.Sprintf("%s/setup-password?token=%s", n.baseURL, setupToken)
	body := fmt.Sprintf(
		"<p>Your account has been created.</p>"+
			"<p><a href=%q>Create your password</a> to access your client portal.</p>",
		link,
	)
	return n.send(ctx, email, "Set Up Your Client Portal Access", body)
}

func (n *SMTPNotifier) SendCardRequest(ctx context.Context, email string) error {
	link := fmt.Sprintf("%s/billing", n.baseURL)
	body := fmt.Sprintf(
		"<p>We don't have a payment method on file for your membership.</p>"+
			"<p>Please <a href=%q>add a card</a> to keep your subscription active.</p>",
		link,
	)
	return n.send(ctx, email, "Payment Details Required", body)
}

// send writes the message synchronously; net/smtp has no context support,
// so ctx is only consulted before dialing.
func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", n.cfg.From, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	n.log.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
