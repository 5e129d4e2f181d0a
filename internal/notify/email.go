package notify

import (
	"context"
	"fmt"

	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// captureFailedEmail builds the subject and body of a capture failure alert.
func captureFailedEmail(f *Failure) (subject, body string) {
	subject = "[ALERT] Audio Capture Stopped - " + f.Station
	body = fmt.Sprintf(
		"Audio capture stopped after a read failure.\n\n"+
			"Source: %s %s\n"+
			"Error:  %s\n"+
			"Time:   %s\n\n"+
			"The meters show the last values read. Capture must be started again.",
		f.Backend, f.Input, f.Err, util.HumanTime(),
	)
	return subject, body
}

// SendTestEmail sends a test email to verify email configuration.
// A failed token request surfaces as the send error.
func SendTestEmail(ctx context.Context, cfg *GraphConfig, stationName string) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	subject := "[TEST] " + stationName
	body := fmt.Sprintf(
		"Test email from %s.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		AppName, util.HumanTime(),
	)

	recipients := ParseRecipients(cfg.Recipients)
	if err := client.SendMail(ctx, recipients, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
