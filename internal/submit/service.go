package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"casetrack/internal/backend"
	"casetrack/internal/logging"
	"casetrack/internal/tasks"
)

// ErrInvalidRequest marks input rejected before anything is sent.
var ErrInvalidRequest = errors.New("invalid submission")

// Submitter posts work to the backend.
type Submitter interface {
	Submit(ctx context.Context, path string, payload backend.SubmitRequest) ([]string, error)
}

// Registrar registers backend task ids for polling.
type Registrar interface {
	Add(ctx context.Context, id string, jobCtx tasks.Context) (*tasks.Job, bool, error)
}

// FailureNotifier raises the submission_failed notification.
type FailureNotifier interface {
	NotifySubmissionFailed(category, caseID string, err error)
}

// Service submits case work and registers the resulting tasks.
type Service struct {
	client   Submitter
	tracker  Registrar
	notifier FailureNotifier
	logger   *slog.Logger
}

// New constructs a submission service. notifier may be nil.
func New(client Submitter, tracker Registrar, notifier FailureNotifier, logger *slog.Logger) *Service {
	return &Service{
		client:   client,
		tracker:  tracker,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "submit"),
	}
}

// EvidenceAnalysis starts analysis of the given evidence items.
func (s *Service) EvidenceAnalysis(ctx context.Context, caseID string, evidenceIDs []string) ([]string, error) {
	return s.Submit(ctx, CategoryEvidenceAnalysis, caseID, evidenceIDs)
}

// AssociationEvidenceAnalysis starts association analysis across evidence items.
func (s *Service) AssociationEvidenceAnalysis(ctx context.Context, caseID string, evidenceIDs []string) ([]string, error) {
	return s.Submit(ctx, CategoryAssociationEvidenceAnalysis, caseID, evidenceIDs)
}

// CardCasting starts card generation from evidence items.
func (s *Service) CardCasting(ctx context.Context, caseID string, evidenceIDs []string) ([]string, error) {
	return s.Submit(ctx, CategoryCardCasting, caseID, evidenceIDs)
}

// Submit posts a category request and registers every returned task id. On a
// backend failure nothing is registered and an empty list is returned with
// the error.
func (s *Service) Submit(ctx context.Context, category Category, caseID string, evidenceIDs []string) ([]string, error) {
	spec, ok := categorySpecs[category]
	if !ok {
		return []string{}, fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, category)
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return []string{}, fmt.Errorf("%w: case id is required", ErrInvalidRequest)
	}
	evidence := cleanIDs(evidenceIDs)

	if _, ok := logging.RequestIDFromContext(ctx); !ok {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldCategory, string(category)),
		logging.String(logging.FieldCaseID, caseID),
	)

	ids, err := s.client.Submit(ctx, spec.path, backend.SubmitRequest{CaseID: caseID, EvidenceIDs: evidence})
	if err != nil {
		logging.WarnWithContext(logger, "submission rejected", "submission_failed",
			logging.Error(err),
			logging.Int("evidence_count", len(evidence)),
			logging.String(logging.FieldImpact, "no task was started"),
			logging.String(logging.FieldErrorHint, "check the backend logs for this request id"),
		)
		if s.notifier != nil {
			s.notifier.NotifySubmissionFailed(string(category), caseID, err)
		}
		return []string{}, err
	}

	jobCtx := tasks.Context{
		Category:    string(category),
		Title:       spec.title,
		Description: describe(spec, caseID, len(evidence)),
		CaseID:      caseID,
		Target:      fmt.Sprintf(spec.target, caseID),
	}
	registered := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, _, err := s.tracker.Add(ctx, id, jobCtx); err != nil {
			logging.ErrorWithContext(logger, "register submitted task", "task_register_failed",
				logging.String(logging.FieldTaskID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "backend task runs but will not be tracked"),
				logging.String(logging.FieldErrorHint, "track it by hand with casetrack tasks track"),
			)
			return registered, fmt.Errorf("register task %s: %w", id, err)
		}
		registered = append(registered, id)
	}

	logger.Info("submission accepted",
		logging.String(logging.FieldEventType, "submission_accepted"),
		logging.Int("task_count", len(registered)),
		logging.Int("evidence_count", len(evidence)),
	)
	return registered, nil
}

func describe(spec categorySpec, caseID string, count int) string {
	noun := "evidence items"
	if count == 1 {
		noun = "evidence item"
	}
	if count == 0 {
		return fmt.Sprintf("%s all evidence for case %s", spec.verb, caseID)
	}
	return fmt.Sprintf("%s %d %s for case %s", spec.verb, count, noun, caseID)
}

func cleanIDs(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
