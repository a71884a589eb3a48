package triage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/triage/pkg/taxid"
)

// State is the lifecycle position of an admission. Transitions only move
// forward: pending -> in_progress -> finalized.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateFinalized  State = "finalized"
)

// PatientRef identifies the patient an admission belongs to.
type PatientRef struct {
	TaxID     string `json:"tax_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Nurse is the staff member who registered the admission.
type Nurse struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	License   string `json:"license,omitempty"`
}

// Physician is identified by email; names and license are informational.
type Physician struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	License   string `json:"license,omitempty"`
}

func (p Physician) Is(other Physician) bool { return p.Email == other.Email }

// stage is a closed union: each variant carries only the data valid in its
// state, so a pending admission cannot hold a physician.
type stage interface{ state() State }

type pendingStage struct{}

type inProgressStage struct {
	physician Physician
	claimedAt time.Time
}

type finalizedStage struct {
	physician   Physician
	claimedAt   time.Time
	finalizedAt time.Time
}

func (pendingStage) state() State    { return StatePending }
func (inProgressStage) state() State { return StateInProgress }
func (finalizedStage) state() State  { return StateFinalized }

// Admission is one patient's emergency room visit from registration until
// the attending physician files the closing report.
type Admission struct {
	ID        uuid.UUID
	Patient   PatientRef
	Nurse     Nurse
	ArrivedAt time.Time
	Note      string
	Level     Level
	Vitals    VitalSigns
	stage     stage
}

// AdmissionParams holds the raw registration data. Vitals are validated by
// NewAdmission.
type AdmissionParams struct {
	Patient         PatientRef
	Nurse           Nurse
	Note            string
	Level           Level
	Temperature     float64
	HeartRate       float64
	RespiratoryRate float64
	Systolic        float64
	Diastolic       float64
	// ArrivedAt defaults to the time of construction.
	ArrivedAt time.Time
}

// NewAdmission builds a pending admission.
func NewAdmission(p AdmissionParams) (*Admission, error) {
	vitals, err := NewVitalSigns(p.Temperature, p.HeartRate, p.RespiratoryRate, p.Systolic, p.Diastolic)
	if err != nil {
		return nil, err
	}
	if !p.Level.Valid() {
		return nil, ErrInvalidLevel
	}
	id := taxid.Normalize(p.Patient.TaxID)
	if id == "" {
		return nil, validationErrorf("patient tax id is required")
	}
	arrived := p.ArrivedAt
	if arrived.IsZero() {
		arrived = time.Now()
	}
	patient := p.Patient
	patient.TaxID = taxid.Format(id)
	return &Admission{
		ID:        uuid.New(),
		Patient:   patient,
		Nurse:     p.Nurse,
		ArrivedAt: arrived,
		Note:      strings.TrimSpace(p.Note),
		Level:     p.Level,
		Vitals:    vitals,
		stage:     pendingStage{},
	}, nil
}

func (a *Admission) State() State {
	if a.stage == nil {
		return StatePending
	}
	return a.stage.state()
}

// Physician returns the assigned physician. ok is false while pending.
func (a *Admission) Physician() (p Physician, ok bool) {
	switch s := a.stage.(type) {
	case inProgressStage:
		return s.physician, true
	case finalizedStage:
		return s.physician, true
	}
	return Physician{}, false
}

// MatchesPatient compares patient identifiers after normalization.
func (a *Admission) MatchesPatient(id string) bool {
	return taxid.Equal(a.Patient.TaxID, id)
}

// Claim assigns p and moves the admission to in_progress. An admission that
// already has a physician cannot be claimed again.
func (a *Admission) Claim(p Physician, at time.Time) error {
	switch a.stage.(type) {
	case inProgressStage, finalizedStage:
		return ErrAlreadyAssigned
	}
	a.stage = inProgressStage{physician: p, claimedAt: at}
	return nil
}

// Finalize files the closing report written by p and moves the admission to
// finalized. Only the assigned physician may finalize, and only once.
func (a *Admission) Finalize(p Physician, report string, at time.Time) (Attention, error) {
	switch s := a.stage.(type) {
	case inProgressStage:
		if !s.physician.Is(p) {
			return Attention{}, ErrNotAssignedDoctor
		}
		a.stage = finalizedStage{physician: s.physician, claimedAt: s.claimedAt, finalizedAt: at}
		return Attention{
			ID:          uuid.New(),
			AdmissionID: a.ID,
			Patient:     a.Patient,
			Physician:   s.physician,
			Report:      report,
			CreatedAt:   at,
		}, nil
	case finalizedStage:
		if !s.physician.Is(p) {
			return Attention{}, ErrNotAssignedDoctor
		}
		return Attention{}, ErrAlreadyFinalized
	default:
		return Attention{}, ErrNoAssignedDoctor
	}
}

// Compare orders admissions by emergency level, most severe first, then by
// arrival, earliest first. It is the queue discipline of the waiting list.
func Compare(x, y *Admission) int {
	if c := CompareLevels(x.Level, y.Level); c != 0 {
		return c
	}
	return x.ArrivedAt.Compare(y.ArrivedAt)
}

func (a Admission) MarshalJSON() ([]byte, error) {
	out := struct {
		ID          uuid.UUID  `json:"id"`
		Patient     PatientRef `json:"patient"`
		Nurse       Nurse      `json:"nurse"`
		ArrivedAt   time.Time  `json:"arrived_at"`
		Note        string     `json:"note"`
		Level       Level      `json:"emergency_level"`
		Vitals      VitalSigns `json:"vital_signs"`
		State       State      `json:"state"`
		Physician   *Physician `json:"physician,omitempty"`
		ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
		FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	}{
		ID:        a.ID,
		Patient:   a.Patient,
		Nurse:     a.Nurse,
		ArrivedAt: a.ArrivedAt,
		Note:      a.Note,
		Level:     a.Level,
		Vitals:    a.Vitals,
		State:     a.State(),
	}
	switch s := a.stage.(type) {
	case inProgressStage:
		out.Physician, out.ClaimedAt = &s.physician, &s.claimedAt
	case finalizedStage:
		out.Physician, out.ClaimedAt, out.FinalizedAt = &s.physician, &s.claimedAt, &s.finalizedAt
	}
	return json.Marshal(out)
}

// Attention is the closing report of a finalized admission.
type Attention struct {
	ID          uuid.UUID  `json:"id"`
	AdmissionID uuid.UUID  `json:"admission_id"`
	Patient     PatientRef `json:"patient"`
	Physician   Physician  `json:"physician"`
	Report      string     `json:"report"`
	CreatedAt   time.Time  `json:"created_at"`
}
