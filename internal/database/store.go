// Package database persists scan results through sqlx. The default driver
// is sqlite3 for local runs; postgres works with the same schema.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

type sqlStore struct {
	db     *sqlx.DB
	cfg    config.Database
	logger *logger.Logger
}

func NewStore(cfg config.Database, log *logger.Logger) (core.ResultStore, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &sqlStore{
		db:     db,
		cfg:    cfg,
		logger: log.WithComponent("database"),
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store.logger.Debugw("Result store initialized",
		"driver", cfg.Driver,
		"max_connections", cfg.MaxConnections,
	)

	return store, nil
}

func (s *sqlStore) getPlaceholder(n int) string {
	if s.cfg.Driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *sqlStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		workflow_name TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		tasks TEXT NOT NULL,
		assets TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vulnerabilities (
		id TEXT NOT NULL,
		scan_id TEXT NOT NULL REFERENCES scans(id),
		name TEXT NOT NULL,
		description TEXT,
		severity TEXT NOT NULL,
		category TEXT,
		affected TEXT NOT NULL,
		evidence TEXT,
		tool TEXT NOT NULL,
		cvss TEXT,
		cves TEXT,
		discovered_at TIMESTAMP NOT NULL,
		PRIMARY KEY (scan_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_vulns_scan ON vulnerabilities(scan_id);
	CREATE INDEX IF NOT EXISTS idx_vulns_severity ON vulnerabilities(severity);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqlStore) SaveScan(ctx context.Context, result *types.ScanResult) error {
	start := time.Now()

	tasksJSON, err := json.Marshal(result.Tasks)
	if err != nil {
		return fmt.Errorf("failed to encode task results: %w", err)
	}
	assetsJSON, err := json.Marshal(result.Assets)
	if err != nil {
		return fmt.Errorf("failed to encode assets: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO scans
		(id, workflow_name, target, status, started_at, completed_at, tasks, assets)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		s.getPlaceholder(1), s.getPlaceholder(2), s.getPlaceholder(3), s.getPlaceholder(4),
		s.getPlaceholder(5), s.getPlaceholder(6), s.getPlaceholder(7), s.getPlaceholder(8))

	if _, err := tx.ExecContext(ctx, query,
		result.ID, result.WorkflowName, result.Target, string(result.Status),
		result.StartedAt, result.CompletedAt, string(tasksJSON), string(assetsJSON),
	); err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	vulnQuery := fmt.Sprintf(`INSERT INTO vulnerabilities
		(id, scan_id, name, description, severity, category, affected, evidence, tool, cvss, cves, discovered_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.getPlaceholder(1), s.getPlaceholder(2), s.getPlaceholder(3), s.getPlaceholder(4),
		s.getPlaceholder(5), s.getPlaceholder(6), s.getPlaceholder(7), s.getPlaceholder(8),
		s.getPlaceholder(9), s.getPlaceholder(10), s.getPlaceholder(11), s.getPlaceholder(12))

	for _, v := range result.Vulnerabilities {
		var cvssJSON, cvesJSON []byte
		if v.CVSS != nil {
			if cvssJSON, err = json.Marshal(v.CVSS); err != nil {
				return fmt.Errorf("failed to encode CVSS for %s: %w", v.ID, err)
			}
		}
		if len(v.CVEs) > 0 {
			if cvesJSON, err = json.Marshal(v.CVEs); err != nil {
				return fmt.Errorf("failed to encode CVEs for %s: %w", v.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, vulnQuery,
			v.ID, result.ID, v.Name, v.Description, string(v.Severity), v.Category,
			v.Affected, v.Evidence, v.Tool, nullable(cvssJSON), nullable(cvesJSON), v.DiscoveredAt,
		); err != nil {
			return fmt.Errorf("failed to insert vulnerability %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan: %w", err)
	}

	s.logger.Debugw("Scan saved",
		"scan_id", result.ID,
		"vulnerabilities", len(result.Vulnerabilities),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func nullable(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type scanRow struct {
	ID           string    `db:"id"`
	WorkflowName string    `db:"workflow_name"`
	Target       string    `db:"target"`
	Status       string    `db:"status"`
	StartedAt    time.Time `db:"started_at"`
	CompletedAt  time.Time `db:"completed_at"`
	Tasks        string    `db:"tasks"`
	Assets       string    `db:"assets"`
}

type vulnRow struct {
	ID           string         `db:"id"`
	ScanID       string         `db:"scan_id"`
	Name         string         `db:"name"`
	Description  sql.NullString `db:"description"`
	Severity     string         `db:"severity"`
	Category     sql.NullString `db:"category"`
	Affected     string         `db:"affected"`
	Evidence     sql.NullString `db:"evidence"`
	Tool         string         `db:"tool"`
	CVSS         sql.NullString `db:"cvss"`
	CVEs         sql.NullString `db:"cves"`
	DiscoveredAt time.Time      `db:"discovered_at"`
}

func (r vulnRow) toVulnerability() (types.Vulnerability, error) {
	v := types.Vulnerability{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description.String,
		Severity:     types.Severity(r.Severity),
		Category:     r.Category.String,
		Affected:     r.Affected,
		Evidence:     r.Evidence.String,
		Tool:         r.Tool,
		DiscoveredAt: r.DiscoveredAt,
	}
	if r.CVSS.Valid && r.CVSS.String != "" {
		v.CVSS = &types.CVSS{}
		if err := json.Unmarshal([]byte(r.CVSS.String), v.CVSS); err != nil {
			return v, fmt.Errorf("failed to decode CVSS for %s: %w", r.ID, err)
		}
	}
	if r.CVEs.Valid && r.CVEs.String != "" {
		if err := json.Unmarshal([]byte(r.CVEs.String), &v.CVEs); err != nil {
			return v, fmt.Errorf("failed to decode CVEs for %s: %w", r.ID, err)
		}
	}
	return v, nil
}

func (s *sqlStore) GetScan(ctx context.Context, scanID string) (*types.ScanResult, error) {
	var row scanRow
	query := fmt.Sprintf("SELECT * FROM scans WHERE id = %s", s.getPlaceholder(1))
	if err := s.db.GetContext(ctx, &row, query, scanID); err != nil {
		return nil, fmt.Errorf("failed to get scan %s: %w", scanID, err)
	}

	result := &types.ScanResult{
		ID:           row.ID,
		WorkflowName: row.WorkflowName,
		Target:       row.Target,
		Status:       types.RunStatus(row.Status),
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
	}
	if err := json.Unmarshal([]byte(row.Tasks), &result.Tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task results: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Assets), &result.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode assets: %w", err)
	}

	var vulnRows []vulnRow
	vulnQuery := fmt.Sprintf("SELECT * FROM vulnerabilities WHERE scan_id = %s", s.getPlaceholder(1))
	if err := s.db.SelectContext(ctx, &vulnRows, vulnQuery, scanID); err != nil {
		return nil, fmt.Errorf("failed to get vulnerabilities for %s: %w", scanID, err)
	}
	for _, r := range vulnRows {
		v, err := r.toVulnerability()
		if err != nil {
			return nil, err
		}
		result.Vulnerabilities = append(result.Vulnerabilities, v)
	}

	return result, nil
}

func (s *sqlStore) ListScans(ctx context.Context, limit int) ([]*types.ScanResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []scanRow
	query := fmt.Sprintf("SELECT * FROM scans ORDER BY started_at DESC LIMIT %s", s.getPlaceholder(1))
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	out := make([]*types.ScanResult, 0, len(rows))
	for _, row := range rows {
		result := &types.ScanResult{
			ID:           row.ID,
			WorkflowName: row.WorkflowName,
			Target:       row.Target,
			Status:       types.RunStatus(row.Status),
			StartedAt:    row.StartedAt,
			CompletedAt:  row.CompletedAt,
		}
		if err := json.Unmarshal([]byte(row.Tasks), &result.Tasks); err != nil {
			return nil, fmt.Errorf("failed to decode task results: %w", err)
		}
		if err := json.Unmarshal([]byte(row.Assets), &result.Assets); err != nil {
			return nil, fmt.Errorf("failed to decode assets: %w", err)
		}
		out = append(out, result)
	}
	return out, nil
}

func (s *sqlStore) GetVulnerabilitiesBySeverity(ctx context.Context, severity types.Severity) ([]types.Vulnerability, error) {
	var rows []vulnRow
	query := fmt.Sprintf("SELECT * FROM vulnerabilities WHERE severity = %s ORDER BY discovered_at DESC", s.getPlaceholder(1))
	if err := s.db.SelectContext(ctx, &rows, query, string(severity)); err != nil {
		return nil, fmt.Errorf("failed to query vulnerabilities: %w", err)
	}

	out := make([]types.Vulnerability, 0, len(rows))
	for _, r := range rows {
		v, err := r.toVulnerability()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
