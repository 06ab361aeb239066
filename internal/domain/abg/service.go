package abg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/platform/auth"
	"github.com/respirasense/abg/internal/platform/classifier"
)

// Result is everything the workflow produced for one sample.
type Result struct {
	Sample       Sample       `json:"sample"`
	Plausibility Plausibility `json:"plausibility"`
	Label        int          `json:"label"`
	Status       Status       `json:"status"`
	Guidance     Guidance     `json:"guidance"`
	ModelVersion string       `json:"model_version"`
	Record       Record       `json:"record"`
	Saved        bool         `json:"saved"`
	Confirmation string       `json:"confirmation,omitempty"`
}

type Service struct {
	predictor classifier.Predictor
	store     RecordStore
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(predictor classifier.Predictor, store RecordStore) *Service {
	return &Service{
		predictor: predictor,
		store:     store,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
}

// SetPublisher attaches an optional Publisher notified after each save.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetClock replaces the wall clock used for record timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetLogger sets the fallback logger used when the request context carries
// none.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// Analyze runs one sample through the workflow for an authenticated session:
// range flags, name check, classification, guidance, log append and
// confirmation, in that order.
//
// A blank patient name returns a *ValidationError before the classifier is
// called. A classifier failure returns an *InferenceError and nothing is
// saved. A store failure returns the computed Result together with a
// *PersistenceError.
func (s *Service) Analyze(ctx context.Context, sess *auth.Session, sample Sample) (*Result, error) {
	if sess == nil || !sess.Authenticated {
		return nil, auth.ErrUnauthenticated
	}

	plaus := CheckPlausibility(sample)

	if strings.TrimSpace(sample.PatientName) == "" {
		return nil, &ValidationError{
			Field:   "patient_name",
			Message: "Please enter the patient name before analyzing.",
		}
	}

	label, err := s.predictor.Predict(ctx, sample.Vector())
	if err != nil {
		s.log(ctx).Error().Err(err).Msg("classification failed")
		return nil, &InferenceError{Err: err}
	}

	status := StatusFromLabel(label)
	res := &Result{
		Sample:       sample,
		Plausibility: plaus,
		Label:        int(label),
		Status:       status,
		Guidance:     GuidanceFor(status),
		ModelVersion: classifier.VersionOf(s.predictor),
		Record:       NewRecord(s.now().Format(TimestampLayout), sample, status),
	}

	s.log(ctx).Info().
		Str("status", string(status)).
		Int("label", int(label)).
		Bool("out_of_range", plaus.Abnormal).
		Strs("flagged", plaus.Flagged()).
		Str("model_version", res.ModelVersion).
		Msg("sample classified")

	if err := s.store.Append(ctx, res.Record); err != nil {
		s.log(ctx).Error().Err(err).Msg("failed to save result")
		return res, &PersistenceError{Err: err}
	}
	res.Saved = true
	res.Confirmation = fmt.Sprintf("Result for %s saved to %s.", sample.PatientName, describe(s.store))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res.Record); err != nil {
			s.log(ctx).Warn().Err(err).Msg("failed to publish result")
		}
	}
	return res, nil
}

// Records pages through the results log.
func (s *Service) Records(ctx context.Context, limit, offset int) ([]Record, int, error) {
	return s.store.List(ctx, limit, offset)
}
