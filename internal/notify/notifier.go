// Package notify delivers capture failure alerts over webhook, a JSON
// lines log file and Microsoft Graph email.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-scope/internal/config"
	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// Failure describes a read failure that ended capture.
type Failure struct {
	Station string
	Backend string
	Input   string
	Err     error
}

// Notifier sends capture failure notifications on every configured
// channel. Deliveries run in the background; Wait blocks until they finish.
type Notifier struct {
	cfg *config.Config

	// mu protects graphClient and graphKey.
	mu          sync.Mutex
	graphClient *GraphClient
	graphKey    GraphConfig

	wg sync.WaitGroup
}

// NewNotifier returns a Notifier reading channel settings from cfg at send time.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// CaptureFailed dispatches a failure to every configured channel.
func (n *Notifier) CaptureFailed(err error) {
	if err == nil {
		return
	}
	cfg := n.cfg.Snapshot()
	f := &Failure{
		Station: cfg.StationName,
		Backend: cfg.Backend,
		Input:   cfg.AudioInput,
		Err:     err,
	}
	if cfg.Backend == types.BackendWAV {
		f.Input = cfg.AudioFile
	}

	if cfg.HasWebhook() {
		n.dispatch("Capture webhook", func() error { return SendCaptureFailedWebhook(cfg.WebhookURL, f) })
	}
	if cfg.HasLogPath() {
		n.dispatch("Capture log", func() error { return LogCaptureFailure(cfg.LogPath, f) })
	}
	if cfg.HasGraph() {
		graphCfg := BuildGraphConfig(&cfg)
		n.dispatch("Capture email", func() error { return n.sendEmail(graphCfg, f) })
	}
}

// Wait blocks until all dispatched notifications have completed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(name string, fn func() error) {
	n.wg.Go(func() {
		util.LogNotifyResult(fn, name)
	})
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
func BuildGraphConfig(cfg *config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

// graphClientFor returns the cached Graph client, replacing it when the
// settings changed since it was created.
func (n *Notifier) graphClientFor(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil && n.graphKey == *cfg {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	n.graphKey = *cfg
	return client, nil
}

func (n *Notifier) sendEmail(cfg *GraphConfig, f *Failure) error {
	client, err := n.graphClientFor(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
	defer cancel()

	subject, body := captureFailedEmail(f)
	if err := client.SendMail(ctx, recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}

// TestWebhook sends a test webhook using the current settings.
func (n *Notifier) TestWebhook() error {
	cfg := n.cfg.Snapshot()
	return SendTestWebhook(cfg.WebhookURL, cfg.StationName)
}

// TestLog writes a test entry to the notification log file.
func (n *Notifier) TestLog() error {
	return WriteTestLog(n.cfg.Snapshot().LogPath)
}

// TestEmail sends a test email using the current settings.
func (n *Notifier) TestEmail() error {
	ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
	defer cancel()

	cfg := n.cfg.Snapshot()
	return SendTestEmail(ctx, BuildGraphConfig(&cfg), cfg.StationName)
}
