package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	// Retry settings.
	maxRetries       = 3 // Retries after the first attempt
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second

	// HTTP client timeout.
	httpTimeout = 30 * time.Second
)

// guidPattern matches the standard GUID format.
var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// validateCredentials checks that required credential fields are present.
// If strict is true, validates GUID format for TenantID and ClientID.
func validateCredentials(cfg *types.GraphConfig, strict bool) error {
	if cfg.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if strict && !guidPattern.MatchString(cfg.TenantID) {
		return fmt.Errorf("tenant ID must be a valid GUID (e.g., 12345678-1234-1234-1234-123456789abc)")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if strict && !guidPattern.MatchString(cfg.ClientID) {
		return fmt.Errorf("client ID must be a valid GUID (e.g., 12345678-1234-1234-1234-123456789abc)")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// newCredentialsConfig creates an OAuth2 credentials configuration.
func newCredentialsConfig(cfg *types.GraphConfig) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
}

// GraphClient sends emails via Microsoft Graph API.
type GraphClient struct {
	baseURL     string
	fromAddress string
	httpClient  *http.Client
}

// NewGraphClient creates a new email client.
func NewGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	if err := validateCredentials(cfg, false); err != nil {
		return nil, err
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("from address (shared mailbox) is required")
	}

	conf := newCredentialsConfig(cfg)

	// Configure base HTTP client with timeout to prevent indefinite hangs
	baseClient := &http.Client{Timeout: httpTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	httpClient := conf.Client(ctx)

	return &GraphClient{
		baseURL:     graphBaseURL,
		fromAddress: cfg.FromAddress,
		httpClient:  httpClient,
	}, nil
}

// graphMailRequest represents a send email request.
type graphMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
}

// errRetryable marks a Graph response worth another attempt.
type errRetryable struct {
	err   error
	after time.Duration // server-requested wait, 0 when absent
}

func (e *errRetryable) Error() string { return e.err.Error() }
func (e *errRetryable) Unwrap() error { return e.err }

// post sends one sendMail request and classifies the outcome.
func (c *GraphClient) post(ctx context.Context, apiURL string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &errRetryable{err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK, http.StatusNoContent:
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	err = fmt.Errorf("graph API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		// Retry-After is honoured in whole seconds only.
		var after time.Duration
		if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && seconds > 0 {
			after = min(time.Duration(seconds)*time.Second, maxRetryWait)
		}
		return &errRetryable{err: err, after: after}
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &errRetryable{err: err}
	default:
		return err
	}
}

// SendMail sends a plain text email to recipients, retrying rate limits
// and transient server errors until ctx ends or the retries run out.
func (c *GraphClient) SendMail(ctx context.Context, recipients []string, subject, body string) error {
	toRecipients := make([]graphRecipient, 0, len(recipients))
	for _, addr := range recipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			toRecipients = append(toRecipients, graphRecipient{
				EmailAddress: graphEmailAddress{Address: addr},
			})
		}
	}
	if len(toRecipients) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	payload, err := json.Marshal(graphMailRequest{Message: graphMessage{
		Subject:      subject,
		Body:         graphBody{ContentType: "Text", Content: body},
		ToRecipients: toRecipients,
	}})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/users/%s/sendMail", c.baseURL, url.PathEscape(c.fromAddress))
	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)

	for attempt := 0; ; attempt++ {
		err = c.post(ctx, apiURL, payload)

		var retry *errRetryable
		if !errors.As(err, &retry) {
			return err
		}
		if attempt == maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}

		wait := backoff.Next()
		if retry.after > 0 {
			wait = retry.after
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %w)", context.Cause(ctx), err)
		}
	}
}

// ValidateConfig validates that cfg has all required fields.
func ValidateConfig(cfg *types.GraphConfig) error {
	if err := validateCredentials(cfg, true); err != nil {
		return err
	}
	if cfg.FromAddress == "" {
		return fmt.Errorf("from address (shared mailbox) is required")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("recipients are required")
	}
	return nil
}

// ParseRecipients splits a comma-separated recipients string into a slice.
func ParseRecipients(recipients string) []string {
	var result []string
	for r := range strings.SplitSeq(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}
