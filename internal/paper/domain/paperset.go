// Package domain holds the paper-set rules: label catalog, lock-state
// transitions, and question-content composition.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/jobchain/integrity/internal/storage"
)

var (
	// ErrEmptyVacancyID indicates a missing vacancy identifier.
	ErrEmptyVacancyID = errors.New("vacancy id is required")
	// ErrEmptyCenterID indicates a missing exam center identifier.
	ErrEmptyCenterID = errors.New("center id is required")
	// ErrUnknownLabel indicates a set label outside the fixed catalog.
	ErrUnknownLabel = errors.New("unknown paper set label")
)

// labels is the fixed ordered catalog of paper set variants per vacancy.
var labels = [5]string{"A", "B", "C", "D", "E"}

// Labels returns the ordered set labels generated for every vacancy.
func Labels() []string {
	return labels[:]
}

// ValidLabel reports whether label belongs to the fixed catalog.
func ValidLabel(label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// NormalizeVacancyID trims and validates a vacancy identifier.
func NormalizeVacancyID(vacancyID string) (string, error) {
	vacancyID = strings.TrimSpace(vacancyID)
	if vacancyID == "" {
		return "", ErrEmptyVacancyID
	}
	return vacancyID, nil
}

// NormalizeCenterID trims and validates an exam center identifier.
func NormalizeCenterID(centerID string) (string, error) {
	centerID = strings.TrimSpace(centerID)
	if centerID == "" {
		return "", ErrEmptyCenterID
	}
	return centerID, nil
}

// Lock binds a set to an exam center. A set that is already locked is left
// untouched and reported as unchanged: center assignment is immutable until
// an explicit unlock.
func Lock(set storage.PaperSet, centerID string, now time.Time) (storage.PaperSet, bool) {
	if set.Locked {
		return set, false
	}
	set.Locked = true
	set.CenterID = centerID
	set.UpdatedAt = now.UTC()
	return set, true
}

// Unlock releases a set regardless of its current state. The center binding
// is kept as audit history until the next lock overwrites it.
func Unlock(set storage.PaperSet, now time.Time) (storage.PaperSet, bool) {
	if !set.Locked {
		return set, false
	}
	set.Locked = false
	set.UpdatedAt = now.UTC()
	return set, true
}

// AllLocked reports whether every set in a non-empty collection is locked.
// An empty collection is never considered locked.
func AllLocked(sets []storage.PaperSet) bool {
	if len(sets) == 0 {
		return false
	}
	for _, set := range sets {
		if !set.Locked {
			return false
		}
	}
	return true
}
