// Package service owns the paper-set lifecycle: generation, locking,
// tamper verification, and administrative unlock.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/jobchain/integrity/internal/errors"
	"github.com/jobchain/integrity/internal/fingerprint"
	"github.com/jobchain/integrity/internal/id"
	"github.com/jobchain/integrity/internal/ledger"
	"github.com/jobchain/integrity/internal/paper/domain"
	"github.com/jobchain/integrity/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service manages the paper-set state machine for vacancies.
type Service struct {
	store       storage.PaperSetStore
	ledger      ledger.Client
	source      domain.ContentSource
	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer
	vacancies   vacancyLocks
}

// New creates a paper service with default dependencies.
func New(store storage.PaperSetStore, ledgerClient ledger.Client) *Service {
	return &Service{
		store:       store,
		ledger:      ledgerClient,
		source:      domain.PlaceholderSource{},
		clock:       time.Now,
		idGenerator: id.NewID,
		tracer:      otel.Tracer("integrity/paper"),
	}
}

// WithContentSource replaces the question-content collaborator.
func (s *Service) WithContentSource(source domain.ContentSource) *Service {
	if source != nil {
		s.source = source
	}
	return s
}

// Generate synthesizes the five paper sets for a vacancy, records each on
// the ledger, and persists the batch in one transaction.
//
// Ledger ordering policy: all five proof events are submitted before any
// local write. A ledger failure aborts with LEDGER_UNAVAILABLE and zero
// persisted sets; callers retry with the same idempotency keys. A local
// failure after ledger success leaves orphaned ledger events, which the
// append-only sink tolerates.
func (s *Service) Generate(ctx context.Context, vacancyID string) ([]storage.PaperSet, error) {
	ctx, span := s.tracer.Start(ctx, "paper.Generate",
		trace.WithAttributes(attribute.String("vacancy_id", vacancyID)))
	defer span.End()

	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if s.store == nil || s.ledger == nil {
		return nil, fmt.Errorf("paper service is not configured")
	}

	release := s.vacancies.acquire(vacancyID)
	defer release()

	existing, err := s.store.ListPaperSetsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list paper sets", err)
	}
	if len(existing) > 0 {
		return nil, apperrors.WithMetadata(
			apperrors.CodePaperSetsExist,
			"paper sets already exist for vacancy",
			map[string]string{"vacancy_id": vacancyID},
		)
	}

	now := s.clock().UTC()
	labels := domain.Labels()
	sets := make([]storage.PaperSet, 0, len(labels))
	for _, label := range labels {
		content, err := s.source.Compose(ctx, vacancyID, label)
		if err != nil {
			return nil, fmt.Errorf("compose paper content %s/%s: %w", vacancyID, label, err)
		}
		setID, err := s.idGenerator()
		if err != nil {
			return nil, fmt.Errorf("generate paper set id: %w", err)
		}
		sets = append(sets, storage.PaperSet{
			ID:          setID,
			VacancyID:   vacancyID,
			SetID:       label,
			Content:     content,
			ContentHash: fingerprint.Hash(content),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	for i := range sets {
		ref, err := s.ledger.Submit(ctx, ledger.Event{
			Name:           ledger.EventDistributePaper,
			IdempotencyKey: vacancyID + "/" + sets[i].SetID,
			Args:           []string{vacancyID, sets[i].SetID, sets[i].ContentHash},
		})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeLedgerUnavailable,
				fmt.Sprintf("record paper set %s on ledger", sets[i].SetID), err)
		}
		sets[i].LedgerRef = ref
	}

	if err := s.store.CreatePaperSets(ctx, sets); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, apperrors.WithMetadata(
				apperrors.CodePaperSetsExist,
				"paper sets already exist for vacancy",
				map[string]string{"vacancy_id": vacancyID},
			)
		}
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "persist paper sets", err)
	}

	log.Printf("generated %d paper sets vacancy_id=%s", len(sets), vacancyID)
	return sets, nil
}

// Lock binds every set of a vacancy to an exam center. Sets that are
// already locked keep their original center (idempotent skip).
func (s *Service) Lock(ctx context.Context, vacancyID, centerID string) ([]storage.PaperSet, error) {
	ctx, span := s.tracer.Start(ctx, "paper.Lock",
		trace.WithAttributes(
			attribute.String("vacancy_id", vacancyID),
			attribute.String("center_id", centerID),
		))
	defer span.End()

	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	centerID, err = domain.NormalizeCenterID(centerID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeCenterIDRequired, err.Error())
	}
	if s.store == nil {
		return nil, fmt.Errorf("paper service is not configured")
	}

	release := s.vacancies.acquire(vacancyID)
	defer release()

	sets, err := s.store.ListPaperSetsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list paper sets", err)
	}
	if len(sets) == 0 {
		return nil, apperrors.WithMetadata(
			apperrors.CodePaperSetNotFound,
			"no paper sets found for vacancy",
			map[string]string{"vacancy_id": vacancyID},
		)
	}

	now := s.clock().UTC()
	for i := range sets {
		locked, changed := domain.Lock(sets[i], centerID, now)
		if !changed {
			log.Printf("paper set already locked vacancy_id=%s set_id=%s center_id=%s",
				vacancyID, sets[i].SetID, sets[i].CenterID)
			continue
		}
		if err := s.store.SetPaperSetLock(ctx, locked.ID, locked.Locked, locked.CenterID, locked.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageFailure,
				fmt.Sprintf("lock paper set %s", locked.SetID), err)
		}
		sets[i] = locked
	}

	log.Printf("locked paper sets vacancy_id=%s center_id=%s", vacancyID, centerID)
	return sets, nil
}

// Unlock is an administrative override releasing every set of a vacancy.
// Authorization is the caller's responsibility; the center binding is kept
// as audit history.
func (s *Service) Unlock(ctx context.Context, vacancyID string) ([]storage.PaperSet, error) {
	ctx, span := s.tracer.Start(ctx, "paper.Unlock",
		trace.WithAttributes(attribute.String("vacancy_id", vacancyID)))
	defer span.End()

	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if s.store == nil {
		return nil, fmt.Errorf("paper service is not configured")
	}

	release := s.vacancies.acquire(vacancyID)
	defer release()

	sets, err := s.store.ListPaperSetsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list paper sets", err)
	}

	now := s.clock().UTC()
	for i := range sets {
		unlocked, changed := domain.Unlock(sets[i], now)
		if !changed {
			continue
		}
		if err := s.store.SetPaperSetLock(ctx, unlocked.ID, unlocked.Locked, unlocked.CenterID, unlocked.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageFailure,
				fmt.Sprintf("unlock paper set %s", unlocked.SetID), err)
		}
		sets[i] = unlocked
	}

	log.Printf("ADMIN: unlocked paper sets vacancy_id=%s", vacancyID)
	return sets, nil
}

// Verify re-hashes the stored content blob of one set and compares it to
// the digest recorded at generation time. It returns false on mismatch and
// PAPER_SET_NOT_FOUND when the set does not exist.
func (s *Service) Verify(ctx context.Context, paperSetID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "paper.Verify",
		trace.WithAttributes(attribute.String("paper_set_id", paperSetID)))
	defer span.End()

	if paperSetID == "" {
		return false, apperrors.New(apperrors.CodePaperSetIDRequired, "paper set id is required")
	}
	if s.store == nil {
		return false, fmt.Errorf("paper service is not configured")
	}

	set, err := s.store.GetPaperSet(ctx, paperSetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, apperrors.WithMetadata(
				apperrors.CodePaperSetNotFound,
				"paper set not found",
				map[string]string{"paper_set_id": paperSetID},
			)
		}
		return false, apperrors.Wrap(apperrors.CodeStorageFailure, "get paper set", err)
	}

	valid := fingerprint.Hash(set.Content) == set.ContentHash
	if !valid {
		log.Printf("TAMPER DETECTED paper_set_id=%s vacancy_id=%s set_id=%s",
			set.ID, set.VacancyID, set.SetID)
	}
	return valid, nil
}

// Sets returns all paper sets for a vacancy in label order.
func (s *Service) Sets(ctx context.Context, vacancyID string) ([]storage.PaperSet, error) {
	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if s.store == nil {
		return nil, fmt.Errorf("paper service is not configured")
	}
	sets, err := s.store.ListPaperSetsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list paper sets", err)
	}
	return sets, nil
}

// SetByLabel returns one paper set of a vacancy by its label.
func (s *Service) SetByLabel(ctx context.Context, vacancyID, label string) (storage.PaperSet, error) {
	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return storage.PaperSet{}, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if !domain.ValidLabel(label) {
		return storage.PaperSet{}, apperrors.WithMetadata(
			apperrors.CodeInvalidSetLabel,
			"unknown paper set label",
			map[string]string{"set_id": label},
		)
	}
	sets, err := s.Sets(ctx, vacancyID)
	if err != nil {
		return storage.PaperSet{}, err
	}
	for _, set := range sets {
		if set.SetID == label {
			return set, nil
		}
	}
	return storage.PaperSet{}, apperrors.WithMetadata(
		apperrors.CodePaperSetNotFound,
		"paper set not found",
		map[string]string{"vacancy_id": vacancyID, "set_id": label},
	)
}

// Count returns the number of paper sets stored for a vacancy.
func (s *Service) Count(ctx context.Context, vacancyID string) (int, error) {
	sets, err := s.Sets(ctx, vacancyID)
	if err != nil {
		return 0, err
	}
	return len(sets), nil
}

// AllLocked reports whether a vacancy has sets and every one is locked.
func (s *Service) AllLocked(ctx context.Context, vacancyID string) (bool, error) {
	sets, err := s.Sets(ctx, vacancyID)
	if err != nil {
		return false, err
	}
	return domain.AllLocked(sets), nil
}
