// Package storage defines persistence contracts for integrity service state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Alert types recorded for a vacancy. OMRTamper is reserved for the OMR
// scanning pipeline and is never produced by the core detectors.
const (
	AlertPaperLeak    = "PAPER_LEAK"
	AlertMarksAnomaly = "MARKS_ANOMALY"
	AlertOMRTamper    = "OMR_TAMPER"
)

// PaperSet stores one labeled question-paper variant for a vacancy.
// Content and ContentHash are immutable after insert; CenterID is non-empty
// exactly when Locked is true.
type PaperSet struct {
	ID          string
	VacancyID   string
	SetID       string
	Content     []byte
	ContentHash string
	Locked      bool
	CenterID    string
	LedgerRef   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FraudAlert stores one immutable fraud finding for a vacancy.
type FraudAlert struct {
	ID           string
	VacancyID    string
	AlertType    string
	SuspectCount int
	PatternHash  string
	EvidenceHash string
	LedgerRef    string
	CreatedAt    time.Time
}

// ExamResult stores one candidate's outcome for a vacancy. The core reads
// these records and never mutates them.
type ExamResult struct {
	CandidateID       string
	VacancyID         string
	Marks             int
	AnswerPatternHash string
}

// PaperSetStore persists paper set records.
type PaperSetStore interface {
	// CreatePaperSets inserts a batch of sets in one transaction. Returns
	// ErrAlreadyExists when any (vacancy_id, set_id) pair is taken, leaving
	// no partial batch behind.
	CreatePaperSets(ctx context.Context, sets []PaperSet) error
	GetPaperSet(ctx context.Context, id string) (PaperSet, error)
	// ListPaperSetsByVacancy returns sets ordered by set label. An unknown
	// vacancy yields an empty slice, not an error.
	ListPaperSetsByVacancy(ctx context.Context, vacancyID string) ([]PaperSet, error)
	// SetPaperSetLock updates only the lock state, center binding, and
	// updated-at of one set. Content columns are never touched.
	SetPaperSetLock(ctx context.Context, id string, locked bool, centerID string, updatedAt time.Time) error
}

// FraudAlertStore persists fraud alert records.
type FraudAlertStore interface {
	CreateFraudAlert(ctx context.Context, alert FraudAlert) error
	// ListFraudAlertsByVacancy returns alerts ordered by creation time. An
	// unknown vacancy yields an empty slice, not an error.
	ListFraudAlertsByVacancy(ctx context.Context, vacancyID string) ([]FraudAlert, error)
	// HasFraudAlert reports whether an alert with the same identity already
	// exists, used to keep repeated analysis runs idempotent.
	HasFraudAlert(ctx context.Context, vacancyID, alertType, patternHash string) (bool, error)
}

// ExamResultSource reads candidate results produced by the results pipeline.
type ExamResultSource interface {
	ListExamResultsByVacancy(ctx context.Context, vacancyID string) ([]ExamResult, error)
}
