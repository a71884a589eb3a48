package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/platform/notify"
	"github.com/ehr/triage/pkg/taxid"
)

type fakeDirectory struct {
	patients map[string]*patient.Patient
	err      error
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{patients: make(map[string]*patient.Patient)}
	for i, id := range ids {
		d.patients[taxid.Normalize(id)] = &patient.Patient{
			TaxID:     taxid.Normalize(id),
			FirstName: "Patient",
			LastName:  fmt.Sprintf("Number%d", i),
		}
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, id string) (*patient.Patient, error) {
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.patients[taxid.Normalize(id)]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	taxA = "20111111111"
	taxB = "20222222222"
	taxC = "20333333333"
)

func newTestService(t *testing.T, ids ...string) (*Service, *testClock, *notify.Recorder) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	rec := &notify.Recorder{}
	svc := NewService(newFakeDirectory(ids...), WithClock(clock.Now), WithPublisher(rec))
	return svc, clock, rec
}

func register(t *testing.T, svc *Service, tax string, level Level) Admission {
	t.Helper()
	a, err := svc.Register(context.Background(), RegisterInput{
		PatientTaxID:    tax,
		Nurse:           Nurse{Email: "nurse@hospital.test"},
		Level:           level,
		Temperature:     37,
		HeartRate:       80,
		RespiratoryRate: 16,
		Systolic:        120,
		Diastolic:       80,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", tax, err)
	}
	return a
}

func TestService_RegisterOrdersQueue(t *testing.T) {
	svc, clock, rec := newTestService(t, taxA, taxB, taxC)

	register(t, svc, taxA, LevelUrgency)
	clock.Advance(time.Minute)
	register(t, svc, taxB, LevelCritical)
	clock.Advance(time.Minute)
	register(t, svc, taxC, LevelUrgency)

	pending := svc.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	got := []string{pending[0].Patient.TaxID, pending[1].Patient.TaxID, pending[2].Patient.TaxID}
	want := []string{taxid.Format(taxB), taxid.Format(taxA), taxid.Format(taxC)}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	events := rec.Events()
	if len(events) != 3 || events[0].Type != notify.EventAdmissionRegistered {
		t.Errorf("expected 3 registered events, got %+v", events)
	}
}

func TestService_RegisterUsesDirectoryNames(t *testing.T) {
	svc, _, _ := newTestService(t, taxA)
	a := register(t, svc, "20-11111111-1", LevelEmergency)
	if a.Patient.FirstName != "Patient" || a.Patient.LastName != "Number0" {
		t.Errorf("expected names from directory, got %+v", a.Patient)
	}
	if a.State() != StatePending {
		t.Errorf("expected pending, got %s", a.State())
	}
}

func TestService_RegisterErrors(t *testing.T) {
	svc, _, rec := newTestService(t, taxA)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{PatientTaxID: taxB, Level: LevelUrgency, Temperature: 37})
	if !errors.Is(err, ErrPatientNotFound) || !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{PatientTaxID: taxA, Level: LevelUrgency, Temperature: 50})
	if !errors.Is(err, ErrTemperatureOutOfRange) {
		t.Errorf("expected temperature error, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{PatientTaxID: taxA, Level: 0, Temperature: 37})
	if !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected invalid level, got %v", err)
	}

	if len(svc.Pending()) != 0 {
		t.Error("failed registrations must not enqueue")
	}
	if len(rec.Events()) != 0 {
		t.Error("failed registrations must not publish")
	}
}

func TestService_RegisterDirectoryFailure(t *testing.T) {
	dir := newFakeDirectory(taxA)
	dir.err = errors.New("connection refused")
	svc := NewService(dir)
	_, err := svc.Register(context.Background(), RegisterInput{PatientTaxID: taxA, Level: LevelUrgency, Temperature: 37})
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		t.Errorf("expected an internal error, got %v", err)
	}
}

func TestService_ClaimHeadOfQueue(t *testing.T) {
	svc, clock, _ := newTestService(t, taxA, taxB)
	register(t, svc, taxA, LevelMinorUrgency)
	clock.Advance(time.Minute)
	register(t, svc, taxB, LevelEmergency)

	a, err := svc.Claim(context.Background(), drHouse, "")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !a.MatchesPatient(taxB) {
		t.Errorf("expected the most severe admission, got %s", a.Patient.TaxID)
	}
	if a.State() != StateInProgress {
		t.Errorf("expected in_progress, got %s", a.State())
	}
	if len(svc.Pending()) != 1 {
		t.Errorf("expected 1 pending left, got %d", len(svc.Pending()))
	}
}

func TestService_ClaimEmptyQueue(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Claim(context.Background(), drHouse, ""); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
	if _, err := svc.Claim(context.Background(), drHouse, taxA); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty for a targeted claim, got %v", err)
	}
}

func TestService_ClaimRequiresIdentity(t *testing.T) {
	svc, _, _ := newTestService(t, taxA)
	register(t, svc, taxA, LevelUrgency)
	if _, err := svc.Claim(context.Background(), Physician{}, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_ClaimTargeted(t *testing.T) {
	svc, _, _ := newTestService(t, taxA, taxB)
	register(t, svc, taxA, LevelCritical)
	register(t, svc, taxB, LevelNoUrgency)

	a, err := svc.Claim(context.Background(), drHouse, "20-22222222-2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !a.MatchesPatient(taxB) {
		t.Errorf("expected targeted patient, got %s", a.Patient.TaxID)
	}

	if _, err := svc.Claim(context.Background(), drWilson, taxC); !errors.Is(err, ErrAdmissionNotFound) {
		t.Errorf("expected ErrAdmissionNotFound, got %v", err)
	}
}

func TestService_DoubleClaimConflict(t *testing.T) {
	svc, _, _ := newTestService(t, taxA)
	register(t, svc, taxA, LevelUrgency)

	if _, err := svc.Claim(context.Background(), drHouse, taxA); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_, err := svc.Claim(context.Background(), drWilson, taxA)
	if !errors.Is(err, ErrAlreadyAssigned) || !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrAlreadyAssigned, got %v", err)
	}

	mine := svc.AdmissionsFor(drHouse.Email)
	if len(mine) != 1 {
		t.Fatalf("expected house to keep the admission, got %d", len(mine))
	}
	if len(svc.AdmissionsFor(drWilson.Email)) != 0 {
		t.Error("wilson should have no admissions")
	}
}

func TestService_PhysicianBusy(t *testing.T) {
	svc, _, _ := newTestService(t, taxA, taxB)
	register(t, svc, taxA, LevelUrgency)
	register(t, svc, taxB, LevelUrgency)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, drHouse, ""); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := svc.Claim(ctx, drHouse, ""); !errors.Is(err, ErrPhysicianBusy) {
		t.Errorf("expected ErrPhysicianBusy, got %v", err)
	}

	if _, err := svc.RegisterAttention(ctx, drHouse, taxA, "stable, discharged"); err != nil {
		t.Fatalf("RegisterAttention: %v", err)
	}
	a, err := svc.Claim(ctx, drHouse, "")
	if err != nil {
		t.Fatalf("claim after finalizing should succeed: %v", err)
	}
	if !a.MatchesPatient(taxB) {
		t.Errorf("expected next patient, got %s", a.Patient.TaxID)
	}
}

func TestService_RegisterAttention(t *testing.T) {
	svc, clock, rec := newTestService(t, taxA)
	register(t, svc, taxA, LevelEmergency)
	ctx := context.Background()

	if _, err := svc.RegisterAttention(ctx, drHouse, taxA, "report"); !errors.Is(err, ErrNoAssignedDoctor) {
		t.Errorf("expected ErrNoAssignedDoctor, got %v", err)
	}

	if _, err := svc.Claim(ctx, drHouse, taxA); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := svc.RegisterAttention(ctx, drWilson, taxA, "report"); !errors.Is(err, ErrNotAssignedDoctor) {
		t.Errorf("expected ErrNotAssignedDoctor, got %v", err)
	}

	clock.Advance(30 * time.Minute)
	att, err := svc.RegisterAttention(ctx, drHouse, taxA, "  fracture immobilized  ")
	if err != nil {
		t.Fatalf("RegisterAttention: %v", err)
	}
	if att.Report != "fracture immobilized" {
		t.Errorf("expected trimmed report, got %q", att.Report)
	}
	if !att.CreatedAt.Equal(clock.Now()) {
		t.Errorf("expected attention time from clock, got %s", att.CreatedAt)
	}

	if _, err := svc.RegisterAttention(ctx, drHouse, taxA, "again"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}

	mine := svc.AttentionsFor(drHouse.Email)
	if len(mine) != 1 || mine[0].ID != att.ID {
		t.Errorf("expected one attention for house, got %+v", mine)
	}
	admissions := svc.AdmissionsFor(drHouse.Email)
	if len(admissions) != 1 || admissions[0].State() != StateFinalized {
		t.Errorf("expected a finalized admission, got %+v", admissions)
	}

	events := rec.Events()
	last := events[len(events)-1]
	if last.Type != notify.EventAdmissionFinalized || last.Level != LevelEmergency.Code() || last.Physician != drHouse.Email {
		t.Errorf("unexpected finalized event %+v", last)
	}
}

func TestService_RegisterAttentionValidation(t *testing.T) {
	svc, _, _ := newTestService(t, taxA)
	ctx := context.Background()
	tests := []struct {
		name      string
		physician Physician
		target    string
		report    string
	}{
		{"no physician", Physician{}, taxA, "report"},
		{"empty report", drHouse, taxA, "   "},
		{"no target", drHouse, "", "report"},
	}
	for _, tt := range tests {
		if _, err := svc.RegisterAttention(ctx, tt.physician, tt.target, tt.report); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tt.name, err)
		}
	}
	if _, err := svc.RegisterAttention(ctx, drHouse, taxA, "report"); !errors.Is(err, ErrAdmissionNotFound) {
		t.Errorf("expected ErrAdmissionNotFound, got %v", err)
	}
}

func TestService_ReturnsCopies(t *testing.T) {
	svc, _, _ := newTestService(t, taxA)
	register(t, svc, taxA, LevelUrgency)

	pending := svc.Pending()
	_ = pending[0].Claim(drHouse, time.Now())

	if len(svc.Pending()) != 1 {
		t.Error("mutating a returned admission must not change the waiting list")
	}
}

func TestService_Suggestions(t *testing.T) {
	svc, clock, _ := newTestService(t, taxA, taxB)
	if _, ok := svc.SuggestNext(); ok {
		t.Error("expected no suggestion on an empty queue")
	}
	if order := svc.SuggestOrder(); len(order) != 0 {
		t.Errorf("expected empty order, got %d", len(order))
	}

	register(t, svc, taxA, LevelUrgency)
	clock.Advance(time.Second)
	_, err := svc.Register(context.Background(), RegisterInput{
		PatientTaxID:    taxB,
		Level:           LevelUrgency,
		Note:            "chest pain",
		Temperature:     37,
		HeartRate:       80,
		RespiratoryRate: 16,
		Systolic:        120,
		Diastolic:       80,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	clock.Advance(61 * time.Minute)

	r, ok := svc.SuggestNext()
	if !ok || !r.Admission.MatchesPatient(taxB) {
		t.Fatalf("expected the chest pain admission, got %+v", r)
	}
	if r.Score != 4 {
		t.Errorf("expected 3 for the note plus 1 for the wait, got %d", r.Score)
	}

	// Claiming without a target still follows queue order, not score.
	a, err := svc.Claim(context.Background(), drHouse, "")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !a.MatchesPatient(taxA) {
		t.Errorf("expected the earliest arrival, got %s", a.Patient.TaxID)
	}
}

func TestService_ConcurrentClaims(t *testing.T) {
	const n = 20
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("2000000%04d", i)
	}
	svc := NewService(newFakeDirectory(ids...))
	for _, id := range ids {
		register(t, svc, id, LevelUrgency)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < 2*n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := Physician{Email: fmt.Sprintf("doc%d@hospital.test", i)}
			if _, err := svc.Claim(context.Background(), doc, ids[i%n]); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if !errors.Is(err, ErrAlreadyAssigned) && !errors.Is(err, ErrQueueEmpty) {
			t.Errorf("unexpected error: %v", err)
		}
		failures++
	}
	if failures != n {
		t.Errorf("expected %d rejected claims, got %d", n, failures)
	}
	if len(svc.Pending()) != 0 {
		t.Errorf("expected every admission claimed, got %d pending", len(svc.Pending()))
	}
}
