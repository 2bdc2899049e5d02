// Package service runs statistical fraud detection over exam results and
// records findings as immutable fraud alerts.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
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

// Detection thresholds. A leak cluster needs at least leakThreshold
// candidates sharing one answer pattern; a marks anomaly needs strictly
// more than anomalyRatio of all candidates above anomalyMarkThreshold.
const (
	defaultLeakThreshold        = 500
	defaultAnomalyMarkThreshold = 90
	defaultAnomalyRatio         = 0.30
)

// Service detects fraud patterns in exam results for a vacancy.
type Service struct {
	alerts  storage.FraudAlertStore
	results storage.ExamResultSource
	ledger  ledger.Client

	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer

	leakThreshold        int
	anomalyMarkThreshold int
	anomalyRatio         float64
}

// New creates a fraud service with default thresholds.
func New(alerts storage.FraudAlertStore, results storage.ExamResultSource, ledgerClient ledger.Client) *Service {
	return &Service{
		alerts:               alerts,
		results:              results,
		ledger:               ledgerClient,
		clock:                time.Now,
		idGenerator:          id.NewID,
		tracer:               otel.Tracer("integrity/fraud"),
		leakThreshold:        defaultLeakThreshold,
		anomalyMarkThreshold: defaultAnomalyMarkThreshold,
		anomalyRatio:         defaultAnomalyRatio,
	}
}

// DetectPaperLeak groups results by answer-pattern fingerprint and raises
// one alert per cluster at or above the leak threshold. Clusters that
// already have an alert are skipped, so repeated runs stay idempotent.
func (s *Service) DetectPaperLeak(ctx context.Context, vacancyID string) ([]storage.FraudAlert, error) {
	ctx, span := s.tracer.Start(ctx, "fraud.DetectPaperLeak",
		trace.WithAttributes(attribute.String("vacancy_id", vacancyID)))
	defer span.End()

	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if s.alerts == nil || s.results == nil || s.ledger == nil {
		return nil, fmt.Errorf("fraud service is not configured")
	}

	results, err := s.results.ListExamResultsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list exam results", err)
	}

	clusters := make(map[string][]string)
	for _, result := range results {
		clusters[result.AnswerPatternHash] = append(clusters[result.AnswerPatternHash], result.CandidateID)
	}

	patterns := make([]string, 0, len(clusters))
	for pattern, candidates := range clusters {
		if len(candidates) >= s.leakThreshold {
			patterns = append(patterns, pattern)
		}
	}
	sort.Strings(patterns)

	var created []storage.FraudAlert
	for _, pattern := range patterns {
		candidates := clusters[pattern]
		exists, err := s.alerts.HasFraudAlert(ctx, vacancyID, storage.AlertPaperLeak, pattern)
		if err != nil {
			return created, apperrors.Wrap(apperrors.CodeStorageFailure, "check existing leak alert", err)
		}
		if exists {
			log.Printf("leak cluster already alerted vacancy_id=%s pattern=%s", vacancyID, pattern)
			continue
		}

		sort.Strings(candidates)
		alert, err := s.recordAlert(ctx, storage.FraudAlert{
			VacancyID:    vacancyID,
			AlertType:    storage.AlertPaperLeak,
			SuspectCount: len(candidates),
			PatternHash:  pattern,
			EvidenceHash: fingerprint.HashString(strings.Join(candidates, "\n")),
		}, ledger.Event{
			Name:           ledger.EventDetectPaperLeak,
			IdempotencyKey: vacancyID + "/" + storage.AlertPaperLeak + "/" + pattern,
			Args:           []string{vacancyID, strconv.Itoa(len(candidates)), pattern},
		})
		if err != nil {
			return created, err
		}
		log.Printf("PAPER LEAK detected vacancy_id=%s suspect_count=%d pattern=%s",
			vacancyID, len(candidates), pattern)
		created = append(created, alert)
	}
	return created, nil
}

// DetectMarksAnomaly raises at most one alert when the share of candidates
// scoring above the mark threshold exceeds the anomaly ratio. A vacancy
// with zero results never alerts.
func (s *Service) DetectMarksAnomaly(ctx context.Context, vacancyID string) ([]storage.FraudAlert, error) {
	ctx, span := s.tracer.Start(ctx, "fraud.DetectMarksAnomaly",
		trace.WithAttributes(attribute.String("vacancy_id", vacancyID)))
	defer span.End()

	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if s.alerts == nil || s.results == nil || s.ledger == nil {
		return nil, fmt.Errorf("fraud service is not configured")
	}

	results, err := s.results.ListExamResultsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list exam results", err)
	}
	total := len(results)
	if total == 0 {
		return nil, nil
	}

	suspects := 0
	for _, result := range results {
		if result.Marks > s.anomalyMarkThreshold {
			suspects++
		}
	}
	if float64(suspects)/float64(total) <= s.anomalyRatio {
		return nil, nil
	}

	// Marks anomalies have no pattern key; one alert per vacancy suffices.
	exists, err := s.alerts.HasFraudAlert(ctx, vacancyID, storage.AlertMarksAnomaly, "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "check existing anomaly alert", err)
	}
	if exists {
		log.Printf("marks anomaly already alerted vacancy_id=%s", vacancyID)
		return nil, nil
	}

	alert, err := s.recordAlert(ctx, storage.FraudAlert{
		VacancyID:    vacancyID,
		AlertType:    storage.AlertMarksAnomaly,
		SuspectCount: suspects,
		EvidenceHash: fingerprint.HashString(fmt.Sprintf("%s|%d|%d", vacancyID, suspects, total)),
	}, ledger.Event{
		Name:           ledger.EventDetectMarksAnomaly,
		IdempotencyKey: vacancyID + "/" + storage.AlertMarksAnomaly,
		Args:           []string{vacancyID, strconv.Itoa(suspects), strconv.Itoa(total)},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("MARKS ANOMALY detected vacancy_id=%s suspect_count=%d total=%d",
		vacancyID, suspects, total)
	return []storage.FraudAlert{alert}, nil
}

// Analyze runs every detector for a vacancy and returns the newly created
// alerts in detection order.
func (s *Service) Analyze(ctx context.Context, vacancyID string) ([]storage.FraudAlert, error) {
	leaks, err := s.DetectPaperLeak(ctx, vacancyID)
	if err != nil {
		return leaks, err
	}
	anomalies, err := s.DetectMarksAnomaly(ctx, vacancyID)
	if err != nil {
		return leaks, err
	}
	return append(leaks, anomalies...), nil
}

// Alerts returns all stored alerts for a vacancy, oldest first. A vacancy
// with no alerts yields an empty collection.
func (s *Service) Alerts(ctx context.Context, vacancyID string) ([]storage.FraudAlert, error) {
	vacancyID, err := domain.NormalizeVacancyID(vacancyID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeVacancyIDRequired, err.Error())
	}
	if s.alerts == nil {
		return nil, fmt.Errorf("fraud service is not configured")
	}
	alerts, err := s.alerts.ListFraudAlertsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list fraud alerts", err)
	}
	return alerts, nil
}

// recordAlert anchors one finding on the ledger and persists it with the
// returned transaction reference.
func (s *Service) recordAlert(ctx context.Context, alert storage.FraudAlert, event ledger.Event) (storage.FraudAlert, error) {
	ref, err := s.ledger.Submit(ctx, event)
	if err != nil {
		return storage.FraudAlert{}, apperrors.Wrap(apperrors.CodeLedgerUnavailable,
			fmt.Sprintf("record %s alert on ledger", alert.AlertType), err)
	}

	alertID, err := s.idGenerator()
	if err != nil {
		return storage.FraudAlert{}, fmt.Errorf("generate alert id: %w", err)
	}
	alert.ID = alertID
	alert.LedgerRef = ref
	alert.CreatedAt = s.clock().UTC()

	if err := s.alerts.CreateFraudAlert(ctx, alert); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return storage.FraudAlert{}, apperrors.Wrap(apperrors.CodeStorageFailure, "alert id collision", err)
		}
		return storage.FraudAlert{}, apperrors.Wrap(apperrors.CodeStorageFailure, "persist fraud alert", err)
	}
	return alert, nil
}
