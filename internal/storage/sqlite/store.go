// Package sqlite provides a SQLite-backed integrity storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobchain/integrity/internal/platform/storage/sqlitemigrate"
	"github.com/jobchain/integrity/internal/storage"
	"github.com/jobchain/integrity/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists integrity state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite integrity store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreatePaperSets inserts a batch of paper sets in one transaction. The
// batch either fully commits or leaves no rows behind; a taken
// (vacancy_id, set_id) pair rolls the whole batch back with
// storage.ErrAlreadyExists.
func (s *Store) CreatePaperSets(ctx context.Context, sets []storage.PaperSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(sets) == 0 {
		return fmt.Errorf("at least one paper set is required")
	}
	for _, set := range sets {
		if strings.TrimSpace(set.ID) == "" {
			return fmt.Errorf("paper set id is required")
		}
		if strings.TrimSpace(set.VacancyID) == "" {
			return fmt.Errorf("vacancy id is required")
		}
		if strings.TrimSpace(set.SetID) == "" {
			return fmt.Errorf("set label is required")
		}
		if len(set.Content) == 0 {
			return fmt.Errorf("paper set content is required")
		}
		if strings.TrimSpace(set.ContentHash) == "" {
			return fmt.Errorf("content hash is required")
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create paper sets: %w", err)
	}
	for _, set := range sets {
		createdAt := set.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		updatedAt := set.UpdatedAt.UTC()
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO paper_sets (
			   id, vacancy_id, set_id, content, content_hash,
			   locked, center_id, ledger_ref, created_at, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			set.ID,
			set.VacancyID,
			set.SetID,
			set.Content,
			set.ContentHash,
			boolToInt(set.Locked),
			set.CenterID,
			set.LedgerRef,
			toMillis(createdAt),
			toMillis(updatedAt),
		)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("create paper set %s/%s: %w", set.VacancyID, set.SetID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create paper sets: %w", err)
	}
	return nil
}

// GetPaperSet returns one paper set by record ID.
func (s *Store) GetPaperSet(ctx context.Context, id string) (storage.PaperSet, error) {
	if err := ctx.Err(); err != nil {
		return storage.PaperSet{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PaperSet{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.PaperSet{}, fmt.Errorf("paper set id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, vacancy_id, set_id, content, content_hash,
		        locked, center_id, ledger_ref, created_at, updated_at
		   FROM paper_sets
		  WHERE id = ?`,
		id,
	)
	return scanPaperSet(row.Scan)
}

// ListPaperSetsByVacancy returns all sets for a vacancy in label order.
func (s *Store) ListPaperSetsByVacancy(ctx context.Context, vacancyID string) ([]storage.PaperSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	vacancyID = strings.TrimSpace(vacancyID)
	if vacancyID == "" {
		return nil, fmt.Errorf("vacancy id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, vacancy_id, set_id, content, content_hash,
		        locked, center_id, ledger_ref, created_at, updated_at
		   FROM paper_sets
		  WHERE vacancy_id = ?
		  ORDER BY set_id ASC`,
		vacancyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list paper sets: %w", err)
	}
	defer rows.Close()

	sets := make([]storage.PaperSet, 0, 5)
	for rows.Next() {
		set, err := scanPaperSet(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list paper sets: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list paper sets: %w", err)
	}
	return sets, nil
}

// SetPaperSetLock updates the lock state of one set. Content columns are
// never written here, keeping stored blobs and digests immutable.
func (s *Store) SetPaperSetLock(ctx context.Context, id string, locked bool, centerID string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("paper set id is required")
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE paper_sets
		    SET locked = ?, center_id = ?, updated_at = ?
		  WHERE id = ?`,
		boolToInt(locked),
		centerID,
		toMillis(updatedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("set paper set lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set paper set lock: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateFraudAlert inserts one immutable fraud alert record.
func (s *Store) CreateFraudAlert(ctx context.Context, alert storage.FraudAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(alert.ID) == "" {
		return fmt.Errorf("alert id is required")
	}
	if strings.TrimSpace(alert.VacancyID) == "" {
		return fmt.Errorf("vacancy id is required")
	}
	if strings.TrimSpace(alert.AlertType) == "" {
		return fmt.Errorf("alert type is required")
	}
	createdAt := alert.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO fraud_alerts (
		   id, vacancy_id, alert_type, suspect_count,
		   pattern_hash, evidence_hash, ledger_ref, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.VacancyID,
		alert.AlertType,
		alert.SuspectCount,
		alert.PatternHash,
		alert.EvidenceHash,
		alert.LedgerRef,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create fraud alert: %w", err)
	}
	return nil
}

// ListFraudAlertsByVacancy returns all alerts for a vacancy, oldest first.
func (s *Store) ListFraudAlertsByVacancy(ctx context.Context, vacancyID string) ([]storage.FraudAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	vacancyID = strings.TrimSpace(vacancyID)
	if vacancyID == "" {
		return nil, fmt.Errorf("vacancy id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, vacancy_id, alert_type, suspect_count,
		        pattern_hash, evidence_hash, ledger_ref, created_at
		   FROM fraud_alerts
		  WHERE vacancy_id = ?
		  ORDER BY created_at ASC, id ASC`,
		vacancyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list fraud alerts: %w", err)
	}
	defer rows.Close()

	var alerts []storage.FraudAlert
	for rows.Next() {
		var alert storage.FraudAlert
		var createdAt int64
		if err := rows.Scan(
			&alert.ID,
			&alert.VacancyID,
			&alert.AlertType,
			&alert.SuspectCount,
			&alert.PatternHash,
			&alert.EvidenceHash,
			&alert.LedgerRef,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list fraud alerts: %w", err)
		}
		alert.CreatedAt = fromMillis(createdAt)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fraud alerts: %w", err)
	}
	return alerts, nil
}

// HasFraudAlert reports whether an alert with the same identity exists.
func (s *Store) HasFraudAlert(ctx context.Context, vacancyID, alertType, patternHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var found int
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM fraud_alerts
		  WHERE vacancy_id = ? AND alert_type = ? AND pattern_hash = ?
		  LIMIT 1`,
		strings.TrimSpace(vacancyID),
		alertType,
		patternHash,
	)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check fraud alert: %w", err)
	}
	return true, nil
}

// CreateExamResult inserts one candidate result. The core never calls this;
// it serves the results pipeline and test seeding.
func (s *Store) CreateExamResult(ctx context.Context, result storage.ExamResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(result.CandidateID) == "" {
		return fmt.Errorf("candidate id is required")
	}
	if strings.TrimSpace(result.VacancyID) == "" {
		return fmt.Errorf("vacancy id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO exam_results (candidate_id, vacancy_id, marks, answer_pattern_hash)
		 VALUES (?, ?, ?, ?)`,
		result.CandidateID,
		result.VacancyID,
		result.Marks,
		result.AnswerPatternHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create exam result: %w", err)
	}
	return nil
}

// ListExamResultsByVacancy returns all candidate results for a vacancy.
func (s *Store) ListExamResultsByVacancy(ctx context.Context, vacancyID string) ([]storage.ExamResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	vacancyID = strings.TrimSpace(vacancyID)
	if vacancyID == "" {
		return nil, fmt.Errorf("vacancy id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT candidate_id, vacancy_id, marks, answer_pattern_hash
		   FROM exam_results
		  WHERE vacancy_id = ?
		  ORDER BY candidate_id ASC`,
		vacancyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list exam results: %w", err)
	}
	defer rows.Close()

	var results []storage.ExamResult
	for rows.Next() {
		var result storage.ExamResult
		if err := rows.Scan(
			&result.CandidateID,
			&result.VacancyID,
			&result.Marks,
			&result.AnswerPatternHash,
		); err != nil {
			return nil, fmt.Errorf("list exam results: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exam results: %w", err)
	}
	return results, nil
}

func scanPaperSet(scan func(dest ...any) error) (storage.PaperSet, error) {
	var set storage.PaperSet
	var locked int
	var createdAt int64
	var updatedAt int64
	err := scan(
		&set.ID,
		&set.VacancyID,
		&set.SetID,
		&set.Content,
		&set.ContentHash,
		&locked,
		&set.CenterID,
		&set.LedgerRef,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PaperSet{}, storage.ErrNotFound
		}
		return storage.PaperSet{}, fmt.Errorf("scan paper set: %w", err)
	}
	set.Locked = locked != 0
	set.CreatedAt = fromMillis(createdAt)
	set.UpdatedAt = fromMillis(updatedAt)
	return set, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ storage.PaperSetStore    = (*Store)(nil)
	_ storage.FraudAlertStore  = (*Store)(nil)
	_ storage.ExamResultSource = (*Store)(nil)
)
