// Package store persists association pass summaries and their committed
// associations in SQLite.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/monitoring"
	"github.com/banshee-data/trackrecovery/internal/recovery"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrPassNotFound is returned when no pass has the requested ID.
var ErrPassNotFound = errors.New("pass not found")

// Store wraps the SQLite database holding pass records.
type Store struct {
	*sql.DB
}

// PassRecord is one stored pass summary.
type PassRecord struct {
	PassID           uuid.UUID
	EventID          string
	StartedAt        time.Time
	Duration         time.Duration
	EligibleTracks   int
	EligibleClusters int
	Candidates       int
	Commits          int
	Status           string
	Error            string
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps pragmas and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations. It is a no-op at the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied migration version, or 0 when none has
// been applied.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Diagf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// InsertPass records a pass and its associations in one transaction.
// passErr is the error the pass ended with, or nil.
func (s *Store) InsertPass(eventID string, res *recovery.PassResult, passErr error) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, errText := monitoring.PassStatusOK, ""
	if passErr != nil {
		status, errText = monitoring.PassStatusFailed, passErr.Error()
	}

	_, err = tx.Exec(`
		INSERT INTO recovery_passes (
			pass_id, event_id, started_unix_nanos, duration_nanos,
			eligible_tracks, eligible_clusters, candidates, commits, status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.PassID.String(), eventID, res.StartedAt.UnixNano(), int64(res.Duration),
		res.Stats.EligibleTracks, res.Stats.EligibleClusters, res.Stats.Candidates,
		len(res.Associations), status, errText,
	)
	if err != nil {
		return fmt.Errorf("insert pass %s: %w", res.PassID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO recovery_associations (pass_id, step, track_id, cluster_id, score)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare association insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range res.Associations {
		if _, err := stmt.Exec(res.PassID.String(), a.Step, int64(a.Track), int64(a.Cluster), a.Score); err != nil {
			return fmt.Errorf("insert association step %d: %w", a.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pass %s: %w", res.PassID, err)
	}
	return nil
}

// GetPass returns the stored summary of a pass.
func (s *Store) GetPass(passID uuid.UUID) (*PassRecord, error) {
	var (
		rec          PassRecord
		id           string
		startedNanos int64
		durNanos     int64
	)
	err := s.QueryRow(`
		SELECT pass_id, event_id, started_unix_nanos, duration_nanos,
			eligible_tracks, eligible_clusters, candidates, commits, status, error
		FROM recovery_passes WHERE pass_id = ?`, passID.String()).Scan(
		&id, &rec.EventID, &startedNanos, &durNanos,
		&rec.EligibleTracks, &rec.EligibleClusters, &rec.Candidates, &rec.Commits, &rec.Status, &rec.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPassNotFound, passID)
	}
	if err != nil {
		return nil, fmt.Errorf("query pass %s: %w", passID, err)
	}

	rec.PassID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse pass id %q: %w", id, err)
	}
	rec.StartedAt = time.Unix(0, startedNanos)
	rec.Duration = time.Duration(durNanos)
	return &rec, nil
}

// ListPasses returns the stored passes of an event, oldest first.
func (s *Store) ListPasses(eventID string) ([]uuid.UUID, error) {
	rows, err := s.Query(`
		SELECT pass_id FROM recovery_passes
		WHERE event_id = ?
		ORDER BY started_unix_nanos, pass_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query passes for event %s: %w", eventID, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse pass id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAssociations returns a pass's committed associations in step order.
func (s *Store) ListAssociations(passID uuid.UUID) ([]recovery.Association, error) {
	rows, err := s.Query(`
		SELECT step, track_id, cluster_id, score
		FROM recovery_associations
		WHERE pass_id = ?
		ORDER BY step`, passID.String())
	if err != nil {
		return nil, fmt.Errorf("query associations for pass %s: %w", passID, err)
	}
	defer rows.Close()

	var out []recovery.Association
	for rows.Next() {
		var (
			a       recovery.Association
			track   int64
			cluster int64
		)
		if err := rows.Scan(&a.Step, &track, &cluster, &a.Score); err != nil {
			return nil, err
		}
		a.Track = event.TrackID(track)
		a.Cluster = event.ClusterID(cluster)
		out = append(out, a)
	}
	return out, rows.Err()
}
