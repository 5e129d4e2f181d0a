// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-scope/internal/types"
	"github.com/oszuidwest/zwfm-scope/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort             = 8080
	DefaultWebUsername         = "admin"
	DefaultWebPassword         = "scope"
	DefaultBackend             = types.BackendCapture
	DefaultPruneIntervalMs     = 16
	DefaultBroadcastIntervalMs = 50
	DefaultStationName         = "ZuidWest FM"
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path" validate:"omitempty,max=4096"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port" validate:"gte=1,lte=65535"`           // HTTP server port
	Username   string `json:"username" validate:"required,max=100"`      // Login username
	Password   string `json:"password" validate:"required,max=500"`      // Login password
}

// AudioConfig holds sample source settings.
type AudioConfig struct {
	Backend    string `json:"backend" validate:"oneof=capture wav"`             // Sample source backend
	Input      string `json:"input" validate:"omitempty,max=256"`               // Capture device identifier
	File       string `json:"file" validate:"required_if=Backend wav,max=4096"` // WAV file for the wav backend
	Loop       bool   `json:"loop"`                                             // Rewind the WAV file at end
	Realtime   bool   `json:"realtime"`                                         // Pace WAV reads to the sample rate
	SampleRate int    `json:"sample_rate" validate:"gte=8000,lte=192000"`       // Capture rate in Hz
	BlockSize  int    `json:"block_size" validate:"gte=128,lte=65536"`          // Samples per read
}

// MeterConfig holds display cadence settings.
type MeterConfig struct {
	PruneIntervalMs     int `json:"prune_interval_ms" validate:"gte=5,lte=1000"`      // Peak invalidation tick
	BroadcastIntervalMs int `json:"broadcast_interval_ms" validate:"gte=16,lte=5000"` // Minimum WebSocket push spacing
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"` // Webhook URL for capture failures
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path" validate:"omitempty,max=4096"` // Log file path for capture failures
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`     // Azure AD tenant ID
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`     // App registration client ID
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"` // App registration client secret
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`  // Shared mailbox sender address
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`   // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	StationName string        `json:"station_name" validate:"omitempty,max=30,printascii"` // Name used in alerts
	Webhook     WebhookConfig `json:"webhook"`                                             // Webhook settings
	Log         LogConfig     `json:"log"`                                                 // Log file settings
	Email       EmailConfig   `json:"email"`                                               // Email settings
}

// EventLogConfig holds the event log location.
type EventLogConfig struct {
	Path string `json:"path" validate:"omitempty,max=4096"` // JSON lines file (empty = platform default)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Audio         AudioConfig         `json:"audio"`
	Meter         MeterConfig         `json:"meter"`
	Notifications NotificationsConfig `json:"notifications"`
	EventLog      EventLogConfig      `json:"event_log"`

	mu       sync.RWMutex
	filePath string
}

// validate is the shared validator instance for configuration values.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Audio: AudioConfig{
			Backend:    DefaultBackend,
			SampleRate: types.DefaultSampleRate,
			BlockSize:  types.DefaultBlockSize,
		},
		Meter: MeterConfig{
			PruneIntervalMs:     DefaultPruneIntervalMs,
			BroadcastIntervalMs: DefaultBroadcastIntervalMs,
		},
		Notifications: NotificationsConfig{StationName: DefaultStationName},
		filePath:      filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		return ValidationErrors(err)
	}
	return nil
}

// ValidationErrors converts validator errors into a types.ValidationError.
// Other errors are returned unchanged.
func ValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := types.NewValidationError()
	for _, e := range verrs {
		// Namespace is "Config.audio.sample_rate"; drop the root type.
		field := e.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out.Add(field, FormatValidationMessage(e), e.Value())
	}
	return out
}

// FormatValidationMessage creates a human-readable message from a validator error.
func FormatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "printascii":
		return "must contain printable characters only"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	// Audio defaults
	if c.Audio.Backend == "" {
		c.Audio.Backend = DefaultBackend
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = types.DefaultSampleRate
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = types.DefaultBlockSize
	}
	// Meter defaults
	if c.Meter.PruneIntervalMs == 0 {
		c.Meter.PruneIntervalMs = DefaultPruneIntervalMs
	}
	if c.Meter.BroadcastIntervalMs == 0 {
		c.Meter.BroadcastIntervalMs = DefaultBroadcastIntervalMs
	}
	if c.Notifications.StationName == "" {
		c.Notifications.StationName = DefaultStationName
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Path returns the configuration file path.
func (c *Config) Path() string {
	return c.filePath
}

// --- Audio settings ---

// AudioSettings returns a copy of the audio settings.
func (c *Config) AudioSettings() AudioConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio
}

// UpdateAudio applies fn to a copy of the audio settings, validates the
// result and persists it. Nothing changes when validation fails.
func (c *Config) UpdateAudio(fn func(*AudioConfig)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.Audio
	fn(&c.Audio)
	if err := c.validateLocked(); err != nil {
		c.Audio = prev
		return err
	}
	if err := c.saveLocked(); err != nil {
		c.Audio = prev
		return err
	}
	return nil
}

// --- Getters ---

// FFmpegPath returns the configured FFmpeg binary path.
func (c *Config) FFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// GraphConfig returns the Microsoft Graph settings for email notifications.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	FFmpegPath  string

	// Audio
	Backend    string
	AudioInput string
	AudioFile  string
	Loop       bool
	Realtime   bool
	SampleRate int
	BlockSize  int

	// Meter
	PruneInterval     time.Duration
	BroadcastInterval time.Duration

	// Notifications
	StationName       string
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Event log
	EventLogPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		FFmpegPath:  c.System.FFmpegPath,

		Backend:    c.Audio.Backend,
		AudioInput: c.Audio.Input,
		AudioFile:  c.Audio.File,
		Loop:       c.Audio.Loop,
		Realtime:   c.Audio.Realtime,
		SampleRate: c.Audio.SampleRate,
		BlockSize:  c.Audio.BlockSize,

		PruneInterval:     time.Duration(c.Meter.PruneIntervalMs) * time.Millisecond,
		BroadcastInterval: time.Duration(c.Meter.BroadcastIntervalMs) * time.Millisecond,

		StationName:       c.Notifications.StationName,
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		EventLogPath: c.EventLog.Path,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return util.IsConfigured(s.WebhookURL)
}

// HasGraph reports whether Microsoft Graph email is fully configured.
func (s *Snapshot) HasGraph() bool {
	return util.IsConfigured(s.GraphTenantID, s.GraphClientID, s.GraphClientSecret, s.GraphFromAddress, s.GraphRecipients)
}

// HasLogPath reports whether a notification log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return util.IsConfigured(s.LogPath)
}
