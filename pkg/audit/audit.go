// Package audit records who did what against the gateway's control
// plane and dispatch path: an Entry model, a fluent Builder, and
// pluggable Logger backends (stdout, rotated file, control-plane
// Postgres).
package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Action classifies what an audit entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	// ActionLogin covers the admin token exchange.
	ActionLogin  Action = "LOGIN"
	ActionLogout Action = "LOGOUT"
	// ActionDispatch is a proxied upstream dispatch.
	ActionDispatch Action = "DISPATCH"
	// ActionReload is an operational control-plane change: registry
	// reload, provider pin/unpin.
	ActionReload Action = "RELOAD"
)

// Outcome is how the audited action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	// OutcomeDenied marks admission or authorization refusals.
	OutcomeDenied Outcome = "DENIED"
)

// Entry is one audit record. Zero-valued optional fields are omitted
// from the JSON form.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Service      string         `json:"service"`
	Method       string         `json:"method"`
	Action       Action         `json:"action"`
	Outcome      Outcome        `json:"outcome"`
	UserID       string         `json:"user_id,omitempty"`
	Username     string         `json:"username,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Resource     string         `json:"resource,omitempty"` // e.g. "provider", "project"
	ResourceID   string         `json:"resource_id,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Changes      *ChangeSet     `json:"changes,omitempty"`
}

// ChangeSet captures a mutation's before/after view, for UPDATE-class
// entries.
type ChangeSet struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
	Fields []string       `json:"fields,omitempty"`
}

// Logger is a pluggable audit backend. Query may be unsupported by
// write-only backends.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter *QueryFilter) ([]*Entry, error)
	Close() error
}

// QueryFilter narrows a Query; zero-valued fields match everything.
type QueryFilter struct {
	StartTime  *time.Time
	EndTime    *time.Time
	Service    string
	Method     string
	Action     Action
	Outcome    Outcome
	UserID     string
	Resource   string
	ResourceID string
	Limit      int
	Offset     int
}

// Config selects and tunes the audit backend.
type Config struct {
	Enabled     bool          `koanf:"enabled"`
	Backend     string        `koanf:"backend"` // stdout, file, postgres
	FilePath    string        `koanf:"file_path"`
	MaxSize     int           `koanf:"max_size"` // MB before rotation
	MaxAge      int           `koanf:"max_age"`  // days before deletion
	Compress    bool          `koanf:"compress"`
	BufferSize  int           `koanf:"buffer_size"`
	FlushPeriod time.Duration `koanf:"flush_period"`

	ExcludeMethods  []string `koanf:"exclude_methods"`
	IncludeRequest  bool     `koanf:"include_request"`
	IncludeResponse bool     `koanf:"include_response"`
	MaskFields      []string `koanf:"mask_fields"`
}

// DefaultConfig enables stdout auditing. MaskFields is filled with the
// usual secret names, but no logger in this package reads it.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Backend:        "stdout",
		BufferSize:     1000,
		FlushPeriod:    5 * time.Second,
		IncludeRequest: false,
		MaskFields:     []string{"password", "token", "secret", "api_key"},
	}
}

// Builder assembles an Entry field by field; every setter returns the
// builder for chaining.
type Builder struct {
	entry *Entry
}

// NewEntry starts a builder stamped with the current time.
func NewEntry() *Builder {
	return &Builder{
		entry: &Entry{
			Timestamp: time.Now(),
			Metadata:  make(map[string]any),
		},
	}
}

func (b *Builder) Service(s string) *Builder {
	b.entry.Service = s
	return b
}

func (b *Builder) Method(m string) *Builder {
	b.entry.Method = m
	return b
}

func (b *Builder) Action(a Action) *Builder {
	b.entry.Action = a
	return b
}

func (b *Builder) Outcome(o Outcome) *Builder {
	b.entry.Outcome = o
	return b
}

func (b *Builder) User(id, username string) *Builder {
	b.entry.UserID = id
	b.entry.Username = username
	return b
}

func (b *Builder) Client(ip, userAgent string) *Builder {
	b.entry.ClientIP = ip
	b.entry.UserAgent = userAgent
	return b
}

func (b *Builder) Resource(resource, resourceID string) *Builder {
	b.entry.Resource = resource
	b.entry.ResourceID = resourceID
	return b
}

func (b *Builder) RequestID(id string) *Builder {
	b.entry.RequestID = id
	return b
}

func (b *Builder) Duration(d time.Duration) *Builder {
	b.entry.DurationMs = d.Milliseconds()
	return b
}

func (b *Builder) Error(code, message string) *Builder {
	b.entry.ErrorCode = code
	b.entry.ErrorMessage = message
	return b
}

func (b *Builder) Meta(key string, value any) *Builder {
	b.entry.Metadata[key] = value
	return b
}

func (b *Builder) Changes(changes *ChangeSet) *Builder {
	b.entry.Changes = changes
	return b
}

// Build finalizes the entry, minting an ID when none was supplied.
func (b *Builder) Build() *Entry {
	if b.entry.ID == "" {
		b.entry.ID = generateID()
	}
	return b.entry
}

// generateID mints a sortable entry id: a second-resolution timestamp
// prefix for log readability, a random suffix for uniqueness.
func generateID() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// Fall back to nanoseconds; uniqueness over security here.
		return time.Now().Format("20060102150405.000000000")
	}
	return time.Now().Format("20060102150405") + "-" + hex.EncodeToString(suffix)
}
