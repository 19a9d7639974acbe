package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// ErrIncidentNotFound is returned when the requested incident does not exist
var ErrIncidentNotFound = errors.New("incident not found")

// IncidentStore defines the interface for incident persistence. Incidents are
// never physically deleted; they are retained for audit.
type IncidentStore interface {
	// Save upserts an incident record, keyed by incident id.
	Save(ctx context.Context, incident *model.Incident) error

	// Get retrieves an incident by id.
	Get(ctx context.Context, id string) (*model.Incident, error)

	// ListActive retrieves all incidents that have not reached a terminal status.
	ListActive(ctx context.Context) ([]*model.Incident, error)

	// ListByStatus retrieves incidents with the given status, newest first.
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Incident, error)
}

// SQLiteIncidentStore implements IncidentStore using SQLite
type SQLiteIncidentStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteIncidentStore opens (or creates) the incident database.
func NewSQLiteIncidentStore(logger *zap.Logger, dbPath string) (*SQLiteIncidentStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteIncidentStore{
		logger: logger.Named("incident-store"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteIncidentStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			source TEXT,
			metrics TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			assigned_agents TEXT,
			resolution_actions TEXT,
			estimated_resolution_time INTEGER,
			actual_resolution_time INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
		CREATE INDEX IF NOT EXISTS idx_incidents_severity ON incidents(severity);
		CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON incidents(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Save implements IncidentStore.Save. The write is idempotent: the incident
// id is the key and the last writer wins.
func (s *SQLiteIncidentStore) Save(ctx context.Context, incident *model.Incident) error {
	metrics, err := json.Marshal(incident.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	agents, err := json.Marshal(incident.AssignedAgents)
	if err != nil {
		return fmt.Errorf("failed to marshal assigned agents: %w", err)
	}
	actions, err := json.Marshal(incident.ResolutionActions)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, title, description, severity, status, source, metrics,
			created_at, updated_at, assigned_agents, resolution_actions,
			estimated_resolution_time, actual_resolution_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			severity = excluded.severity,
			status = excluded.status,
			source = excluded.source,
			metrics = excluded.metrics,
			updated_at = excluded.updated_at,
			assigned_agents = excluded.assigned_agents,
			resolution_actions = excluded.resolution_actions,
			estimated_resolution_time = excluded.estimated_resolution_time,
			actual_resolution_time = excluded.actual_resolution_time`,
		incident.ID,
		incident.Title,
		incident.Description,
		string(incident.Severity),
		string(incident.Status),
		incident.Source,
		string(metrics),
		incident.CreatedAt.UTC().Format(time.RFC3339Nano),
		incident.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(agents),
		string(actions),
		incident.EstimatedResolutionTime,
		incident.ActualResolutionTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// Get implements IncidentStore.Get.
func (s *SQLiteIncidentStore) Get(ctx context.Context, id string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, severity, status, source, metrics,
			created_at, updated_at, assigned_agents, resolution_actions,
			estimated_resolution_time, actual_resolution_time
		FROM incidents WHERE id = ?`, id)

	incident, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, err
	}
	return incident, nil
}

// ListActive implements IncidentStore.ListActive.
func (s *SQLiteIncidentStore) ListActive(ctx context.Context) ([]*model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, severity, status, source, metrics,
			created_at, updated_at, assigned_agents, resolution_actions,
			estimated_resolution_time, actual_resolution_time
		FROM incidents
		WHERE status NOT IN (?, ?)
		ORDER BY created_at DESC`,
		string(model.StatusResolved), string(model.StatusEscalated))
	if err != nil {
		return nil, fmt.Errorf("failed to list active incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// ListByStatus implements IncidentStore.ListByStatus.
func (s *SQLiteIncidentStore) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, severity, status, source, metrics,
			created_at, updated_at, assigned_agents, resolution_actions,
			estimated_resolution_time, actual_resolution_time
		FROM incidents
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// Close closes the database connection.
func (s *SQLiteIncidentStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var incident model.Incident
	var severity, status, createdAt, updatedAt string
	var description, source, metrics, agents, actions sql.NullString
	var estimated, actual sql.NullInt64

	err := row.Scan(
		&incident.ID,
		&incident.Title,
		&description,
		&severity,
		&status,
		&source,
		&metrics,
		&createdAt,
		&updatedAt,
		&agents,
		&actions,
		&estimated,
		&actual,
	)
	if err != nil {
		return nil, err
	}

	incident.Description = description.String
	incident.Severity = model.Severity(severity)
	incident.Status = model.Status(status)
	incident.Source = source.String

	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &incident.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}
	if agents.Valid && agents.String != "" {
		if err := json.Unmarshal([]byte(agents.String), &incident.AssignedAgents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assigned agents: %w", err)
		}
	}
	if actions.Valid && actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &incident.ResolutionActions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resolution actions: %w", err)
		}
	}

	incident.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	incident.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	incident.EstimatedResolutionTime = int(estimated.Int64)
	incident.ActualResolutionTime = int(actual.Int64)

	return &incident, nil
}

func collectIncidents(rows *sql.Rows) ([]*model.Incident, error) {
	var incidents []*model.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return incidents, nil
}
