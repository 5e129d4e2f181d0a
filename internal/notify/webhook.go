package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// webhookTimeout bounds a single webhook delivery.
const webhookTimeout = 10000 * time.Millisecond

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event     string `json:"event"`
	Station   string `json:"station,omitempty"`
	Backend   string `json:"backend,omitempty"`
	Input     string `json:"input,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SendCaptureFailedWebhook notifies the configured webhook that capture stopped on a read failure.
func SendCaptureFailedWebhook(webhookURL string, f *Failure) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "capture_failed",
		Station:   f.Station,
		Backend:   f.Backend,
		Input:     f.Input,
		Error:     f.Err.Error(),
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, stationName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Station:   stationName,
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
