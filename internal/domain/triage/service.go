package triage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/platform/notify"
	"github.com/ehr/triage/pkg/taxid"
)

// PatientDirectory resolves patients by tax id in any formatting.
type PatientDirectory interface {
	Lookup(ctx context.Context, taxID string) (*patient.Patient, error)
}

// RegisterInput is the data a nurse records for a new admission.
type RegisterInput struct {
	PatientTaxID    string
	Nurse           Nurse
	Note            string
	Level           Level
	Temperature     float64
	HeartRate       float64
	RespiratoryRate float64
	Systolic        float64
	Diastolic       float64
}

// Service owns the waiting list. A single RWMutex serializes writes so that
// claim and attention checks and their mutation happen as one unit; reads run
// concurrently and only ever see copies.
type Service struct {
	mu         sync.RWMutex
	admissions []*Admission
	attentions []Attention

	patients  PatientDirectory
	publisher notify.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithPublisher sets where lifecycle events are sent. The default drops them.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(patients PatientDirectory, opts ...Option) *Service {
	s := &Service{
		patients:  patients,
		publisher: notify.Nop{},
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and appends a new pending admission, then re-sorts the
// whole waiting list by queue order.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Admission, error) {
	if _, err := NewVitalSigns(in.Temperature, in.HeartRate, in.RespiratoryRate, in.Systolic, in.Diastolic); err != nil {
		return Admission{}, err
	}
	if !in.Level.Valid() {
		return Admission{}, ErrInvalidLevel
	}
	if taxid.Normalize(in.PatientTaxID) == "" {
		return Admission{}, validationErrorf("patient tax id is required")
	}

	p, err := s.patients.Lookup(ctx, in.PatientTaxID)
	if errors.Is(err, patient.ErrNotFound) {
		return Admission{}, ErrPatientNotFound
	}
	if err != nil {
		return Admission{}, fmt.Errorf("lookup patient: %w", err)
	}

	a, err := NewAdmission(AdmissionParams{
		Patient:         PatientRef{TaxID: p.TaxID, FirstName: p.FirstName, LastName: p.LastName},
		Nurse:           in.Nurse,
		Note:            in.Note,
		Level:           in.Level,
		Temperature:     in.Temperature,
		HeartRate:       in.HeartRate,
		RespiratoryRate: in.RespiratoryRate,
		Systolic:        in.Systolic,
		Diastolic:       in.Diastolic,
		ArrivedAt:       s.now(),
	})
	if err != nil {
		return Admission{}, err
	}

	s.mu.Lock()
	s.admissions = append(s.admissions, a)
	sort.SliceStable(s.admissions, func(i, j int) bool {
		return Compare(s.admissions[i], s.admissions[j]) < 0
	})
	snapshot := *a
	s.mu.Unlock()

	s.logger.Info().
		Str("admission_id", snapshot.ID.String()).
		Str("patient_tax_id", snapshot.Patient.TaxID).
		Str("level", snapshot.Level.String()).
		Msg("admission registered")
	s.publish(ctx, notify.EventAdmissionRegistered, snapshot, "")
	return snapshot, nil
}

// Pending returns the admissions waiting for a physician in queue order.
func (s *Service) Pending() []Admission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAdmissions(s.pendingLocked())
}

// SuggestNext returns the best scored pending admission. ok is false when
// nobody is waiting.
func (s *Service) SuggestNext() (Result, bool) {
	return Suggest(s.Pending(), s.now())
}

// SuggestOrder returns the full scored ranking of pending admissions.
func (s *Service) SuggestOrder() []Result {
	return Rank(s.Pending(), s.now())
}

// Claim assigns physician to a pending admission. With an empty target the
// head of the queue (level, then arrival) is taken, not the best score.
func (s *Service) Claim(ctx context.Context, physician Physician, target string) (Admission, error) {
	if strings.TrimSpace(physician.Email) == "" {
		return Admission{}, validationErrorf("physician identity is required")
	}

	s.mu.Lock()
	a, err := s.claimLocked(physician, target)
	var snapshot Admission
	if err == nil {
		snapshot = *a
	}
	s.mu.Unlock()
	if err != nil {
		return Admission{}, err
	}

	s.logger.Info().
		Str("admission_id", snapshot.ID.String()).
		Str("patient_tax_id", snapshot.Patient.TaxID).
		Str("physician", physician.Email).
		Msg("admission claimed")
	s.publish(ctx, notify.EventAdmissionClaimed, snapshot, physician.Email)
	return snapshot, nil
}

func (s *Service) claimLocked(physician Physician, target string) (*Admission, error) {
	if s.attendingLocked(physician) {
		return nil, ErrPhysicianBusy
	}
	pending := s.pendingLocked()

	var chosen *Admission
	if taxid.Normalize(target) == "" {
		if len(pending) == 0 {
			return nil, ErrQueueEmpty
		}
		chosen = pending[0]
	} else {
		for _, a := range pending {
			if a.MatchesPatient(target) {
				chosen = a
				break
			}
		}
		if chosen == nil {
			// Report a taken admission as a conflict rather than as missing.
			for _, a := range s.admissions {
				if a.MatchesPatient(target) && a.State() == StateInProgress {
					return nil, ErrAlreadyAssigned
				}
			}
			if len(pending) == 0 {
				return nil, ErrQueueEmpty
			}
			return nil, ErrAdmissionNotFound
		}
	}

	if err := chosen.Claim(physician, s.now()); err != nil {
		return nil, err
	}
	return chosen, nil
}

// RegisterAttention files the closing report of an admission and finalizes
// it. Only the physician who claimed the admission may do so.
func (s *Service) RegisterAttention(ctx context.Context, physician Physician, target, report string) (Attention, error) {
	if strings.TrimSpace(physician.Email) == "" {
		return Attention{}, validationErrorf("physician identity is required")
	}
	report = strings.TrimSpace(report)
	if report == "" {
		return Attention{}, validationErrorf("attention report is required")
	}
	if taxid.Normalize(target) == "" {
		return Attention{}, validationErrorf("patient tax id is required")
	}

	s.mu.Lock()
	var (
		att   Attention
		level Level
		err   error
	)
	if a := s.findForAttentionLocked(target); a == nil {
		err = ErrAdmissionNotFound
	} else if att, err = a.Finalize(physician, report, s.now()); err == nil {
		level = a.Level
		s.attentions = append(s.attentions, att)
	}
	s.mu.Unlock()
	if err != nil {
		return Attention{}, err
	}

	s.logger.Info().
		Str("admission_id", att.AdmissionID.String()).
		Str("attention_id", att.ID.String()).
		Str("physician", physician.Email).
		Msg("attention registered")
	s.publishEvent(ctx, notify.Event{
		Type:         notify.EventAdmissionFinalized,
		AdmissionID:  att.AdmissionID,
		PatientTaxID: att.Patient.TaxID,
		Level:        level.Code(),
		Physician:    physician.Email,
	})
	return att, nil
}

// AdmissionsFor lists every admission the physician has claimed, in queue
// order.
func (s *Service) AdmissionsFor(email string) []Admission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Admission
	for _, a := range s.admissions {
		if p, ok := a.Physician(); ok && p.Email == email {
			out = append(out, *a)
		}
	}
	if out == nil {
		out = []Admission{}
	}
	return out
}

// AttentionsFor lists the reports filed by the physician, oldest first.
func (s *Service) AttentionsFor(email string) []Attention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Attention{}
	for _, at := range s.attentions {
		if at.Physician.Email == email {
			out = append(out, at)
		}
	}
	return out
}

func (s *Service) attendingLocked(physician Physician) bool {
	for _, a := range s.admissions {
		if p, ok := a.Physician(); ok && p.Is(physician) && a.State() == StateInProgress {
			return true
		}
	}
	return false
}

func (s *Service) pendingLocked() []*Admission {
	pending := []*Admission{}
	for _, a := range s.admissions {
		if a.State() == StatePending {
			pending = append(pending, a)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return Compare(pending[i], pending[j]) < 0
	})
	return pending
}

// findForAttentionLocked prefers the in-progress admission of the patient so
// that an older finalized visit does not shadow the current one.
func (s *Service) findForAttentionLocked(target string) *Admission {
	var first *Admission
	for _, a := range s.admissions {
		if !a.MatchesPatient(target) {
			continue
		}
		if a.State() == StateInProgress {
			return a
		}
		if first == nil {
			first = a
		}
	}
	return first
}

func (s *Service) publish(ctx context.Context, typ string, a Admission, physician string) {
	s.publishEvent(ctx, notify.Event{
		Type:         typ,
		AdmissionID:  a.ID,
		PatientTaxID: a.Patient.TaxID,
		Level:        a.Level.Code(),
		Physician:    physician,
	})
}

func (s *Service) publishEvent(ctx context.Context, e notify.Event) {
	e.ID = uuid.New()
	e.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event", e.Type).Msg("publish event failed")
	}
}

func copyAdmissions(in []*Admission) []Admission {
	out := make([]Admission, len(in))
	for i, a := range in {
		out[i] = *a
	}
	return out
}
