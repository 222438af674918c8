// Package notify delivers recording events to the configured channels: a
// JSONL event log, a webhook, and email alerts for failures.
package notify

import (
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/oszuidwest/zwfm-recorder/internal/config"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// EmailConfig contains SMTP server settings for email notifications.
type EmailConfig struct {
	Host       string
	Port       int
	FromName   string
	Username   string
	Password   string
	Recipients string
}

// EmailConfigFromSnapshot builds SMTP settings from a config snapshot.
func EmailConfigFromSnapshot(snap config.Snapshot) *EmailConfig {
	return &EmailConfig{
		Host:       snap.EmailSMTPHost,
		Port:       snap.EmailSMTPPort,
		FromName:   snap.EmailFromName,
		Username:   snap.EmailUsername,
		Password:   snap.EmailPassword,
		Recipients: snap.EmailRecipients,
	}
}

// SendFailureAlert sends an email when a recording ends in an error.
func SendFailureAlert(cfg *EmailConfig, session types.RecordingSession, reason string) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil // Silently skip if not configured
	}

	subject := "[ALERT] Recording Failed - ZuidWest Recorder"
	body := fmt.Sprintf(
		"A recording ended unexpectedly.\n\n"+
			"Session:  %s\n"+
			"Profile:  %s\n"+
			"Output:   %s\n"+
			"Error:    %s\n"+
			"Time:     %s\n\n"+
			"The partial recording may still be playable.",
		session.ID, session.ProfileID, session.OutputPath, reason,
		util.FormatHumanTime(util.RFC3339Now()),
	)

	return sendEmail(cfg, subject, body)
}

// SendAutoStopAlert sends an email when the safety monitor forces a stop.
func SendAutoStopAlert(cfg *EmailConfig, reason types.StopReason, message string) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil // Silently skip if not configured
	}

	subject := "[ALERT] Recording Stopped Automatically - ZuidWest Recorder"
	body := fmt.Sprintf(
		"The safety monitor stopped an active recording.\n\n"+
			"Reason:   %s\n"+
			"Detail:   %s\n"+
			"Time:     %s\n\n"+
			"The recording up to this point has been finalized.",
		reason, message, util.FormatHumanTime(util.RFC3339Now()),
	)

	return sendEmail(cfg, subject, body)
}

// SendTestEmail sends a test email to verify SMTP configuration.
func SendTestEmail(cfg *EmailConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if cfg.Username == "" {
		return fmt.Errorf("email username not configured")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("email recipients not configured")
	}

	subject := "[TEST] ZuidWest Recorder"
	body := fmt.Sprintf(
		"Test email from the screen recorder.\n\n"+
			"Time: %s\n\n"+
			"SMTP configuration is working correctly.",
		util.FormatHumanTime(util.RFC3339Now()),
	)

	return sendEmail(cfg, subject, body)
}

// sendEmail delivers an email message to configured recipients.
func sendEmail(cfg *EmailConfig, subject, body string) error {
	var recipients []string
	for _, r := range strings.Split(cfg.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	m := mail.NewMsg()
	if cfg.FromName != "" {
		if err := m.FromFormat(cfg.FromName, cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	} else {
		if err := m.From(cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	}
	if err := m.To(recipients...); err != nil {
		return util.WrapError("set recipient address", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	// Build client options with port-appropriate TLS settings
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}

	switch cfg.Port {
	case 465: // SMTPS - implicit TLS
		opts = append(opts, mail.WithSSL())
	case 587: // Submission - STARTTLS required
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	default: // Port 25 or custom - opportunistic TLS
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return util.WrapError("create SMTP client", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return util.WrapError("send email", err)
	}

	return nil
}
