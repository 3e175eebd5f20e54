// Package store is the control-plane persistence layer: project records
// and provider registry overlay rows, backing the project data cache's
// upstream tier.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"gateway/pkg/database"
)

// ProjectStatus is a project's validation status.
type ProjectStatus string

const (
	ProjectStatusValid     ProjectStatus = "valid"
	ProjectStatusInvalid   ProjectStatus = "invalid"
	ProjectStatusDisabled  ProjectStatus = "disabled"
	ProjectStatusOverQuota ProjectStatus = "over_quota"
)

// Project is the durable project record.
type Project struct {
	ID          string
	Status      ProjectStatus
	QuotaLimit  int
	DenylistFeatures []string
	CreatedAt   time.Time
}

// IsUsable reports whether the project is in a status that permits dispatch.
func (p *Project) IsUsable() bool {
	return p.Status == ProjectStatusValid
}

// DenylistsFeature reports whether feature (e.g. "balances") is denylisted
// for this project.
func (p *Project) DenylistsFeature(feature string) bool {
	for _, f := range p.DenylistFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

// ProviderOverlay is one control-plane override row for a (provider, chain)
// pair, layered on top of the config-seeded registry.
type ProviderOverlay struct {
	ProviderID     string
	ChainID        string
	Enabled        bool
	WeightOverride *float64
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Store is the control-plane Postgres accessor.
type Store struct {
	db database.DB
}

// New constructs a Store over an already-connected database.DB.
func New(db database.DB) *Store {
	return &Store{db: db}
}

// GetProject fetches one project by id. Returns ErrNotFound if no row
// exists — distinct from a connection/query failure, which the project
// data cache maps to "unavailable" rather than "not_found".
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, status, quota_limit, denylist_features, created_at
		   FROM projects WHERE id = $1`, id)

	var p Project
	if err := row.Scan(&p.ID, &p.Status, &p.QuotaLimit, &p.DenylistFeatures, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProject inserts or updates a project row (used by provisioning
// tooling and integration tests, not by the request path).
func (s *Store) UpsertProject(ctx context.Context, p *Project) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO projects (id, status, quota_limit, denylist_features, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   quota_limit = EXCLUDED.quota_limit,
		   denylist_features = EXCLUDED.denylist_features`,
		p.ID, p.Status, p.QuotaLimit, p.DenylistFeatures, p.CreatedAt)
	return err
}

// ListProviderOverlay returns every overlay row, used to rebuild the
// registry snapshot on reload.
func (s *Store) ListProviderOverlay(ctx context.Context) ([]*ProviderOverlay, error) {
	rows, err := s.db.Query(ctx,
		`SELECT provider_id, chain_id, enabled, weight_override FROM provider_overlay`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProviderOverlay
	for rows.Next() {
		var o ProviderOverlay
		if err := rows.Scan(&o.ProviderID, &o.ChainID, &o.Enabled, &o.WeightOverride); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// SetProviderOverlay upserts one overlay row (used by the admin pin/unpin
// endpoints to persist across restarts).
func (s *Store) SetProviderOverlay(ctx context.Context, o *ProviderOverlay) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO provider_overlay (provider_id, chain_id, enabled, weight_override)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider_id, chain_id) DO UPDATE SET
		   enabled = EXCLUDED.enabled,
		   weight_override = EXCLUDED.weight_override`,
		o.ProviderID, o.ChainID, o.Enabled, o.WeightOverride)
	return err
}

// DispatchAudit is one row of the dispatch audit trail (the control-plane
// rows): one row per terminal dispatcher outcome, written
// asynchronously so the audit write never delays the client response.
type DispatchAudit struct {
	RequestID  string
	ProjectID  string
	ChainID    string
	Method     string
	Outcome    string
	ProviderID string
	LatencyMS  int64
	Timestamp  time.Time
}

// InsertDispatchAudit appends one dispatch audit row. Called off the
// request's hot path.
func (s *Store) InsertDispatchAudit(ctx context.Context, a *DispatchAudit) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO dispatch_audit (request_id, project_id, chain_id, method, outcome, provider_id, latency_ms, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.RequestID, a.ProjectID, a.ChainID, a.Method, a.Outcome, a.ProviderID, a.LatencyMS, a.Timestamp)
	return err
}
