package treatmentplan

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	"github.com/jwalitptl/physio-api/internal/service/event"
	"github.com/jwalitptl/physio-api/pkg/errors"
)

// memStore is a map-backed store whose WithTx restores the previous state
// when fn fails.
type memStore struct {
	plans  map[uuid.UUID]model.TreatmentPlan
	items  map[uuid.UUID]model.PrescribedExercise
	events []event.Change

	appendConflicts int
	emitErr         error
	createErr       error
	appendErr       error
	deleteErr       error
	locked          []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		plans: map[uuid.UUID]model.TreatmentPlan{},
		items: map[uuid.UUID]model.PrescribedExercise{},
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	plans := make(map[uuid.UUID]model.TreatmentPlan, len(m.plans))
	for k, v := range m.plans {
		plans[k] = v
	}
	items := make(map[uuid.UUID]model.PrescribedExercise, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	events := append([]event.Change(nil), m.events...)

	if err := fn(ctx); err != nil {
		m.plans, m.items, m.events = plans, items, events
		return err
	}
	return nil
}

func (m *memStore) Emit(ctx context.Context, ch event.Change) error {
	if m.emitErr != nil {
		return m.emitErr
	}
	m.events = append(m.events, ch)
	return nil
}

func (m *memStore) eventTypes() []string {
	var out []string
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type planRepo struct{ *memStore }

func (r planRepo) Create(ctx context.Context, plan *model.TreatmentPlan) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.plans[plan.ID] = *plan
	return nil
}

func (r planRepo) Get(ctx context.Context, id uuid.UUID) (*model.TreatmentPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r planRepo) Lock(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.plans[id]; !ok {
		return repository.ErrNotFound
	}
	r.locked = append(r.locked, id)
	return nil
}

func (r planRepo) Update(ctx context.Context, plan *model.TreatmentPlan) error {
	if _, ok := r.plans[plan.ID]; !ok {
		return repository.ErrNotFound
	}
	r.plans[plan.ID] = *plan
	return nil
}

func (r planRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.plans[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.plans, id)
	return nil
}

func (r planRepo) List(ctx context.Context, f *model.TreatmentPlanFilters) ([]*model.TreatmentPlan, error) {
	var out []*model.TreatmentPlan
	for _, p := range r.plans {
		p := p
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.PhysiotherapistID != nil && p.PhysiotherapistID != *f.PhysiotherapistID {
			continue
		}
		if f.Status != "" && string(p.Status) != f.Status {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type itemRepo struct{ *memStore }

func (r itemRepo) BulkInsert(ctx context.Context, items []*model.PrescribedExercise) error {
	for _, item := range items {
		r.items[item.ID] = *item
	}
	return nil
}

func (r itemRepo) Append(ctx context.Context, item *model.PrescribedExercise) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	if r.appendConflicts > 0 {
		r.appendConflicts--
		return repository.ErrConflict
	}
	if _, ok := r.plans[item.TreatmentPlanID]; !ok {
		return repository.ErrNotFound
	}
	last := 0
	for _, existing := range r.items {
		if existing.TreatmentPlanID == item.TreatmentPlanID && existing.OrderIndex > last {
			last = existing.OrderIndex
		}
	}
	item.OrderIndex = last + 1
	r.items[item.ID] = *item
	return nil
}

func (r itemRepo) Get(ctx context.Context, planID, id uuid.UUID) (*model.PrescribedExercise, error) {
	item, ok := r.items[id]
	if !ok || item.TreatmentPlanID != planID {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (r itemRepo) Delete(ctx context.Context, planID, id uuid.UUID) error {
	item, ok := r.items[id]
	if !ok || item.TreatmentPlanID != planID {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r itemRepo) DeleteByPlan(ctx context.Context, planID uuid.UUID) (int64, error) {
	var n int64
	for id, item := range r.items {
		if item.TreatmentPlanID == planID {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

func (r itemRepo) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*model.PrescribedExercise, error) {
	return r.ListByPlans(ctx, []uuid.UUID{planID})
}

func (r itemRepo) ListByPlans(ctx context.Context, planIDs []uuid.UUID) ([]*model.PrescribedExercise, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range planIDs {
		want[id] = true
	}
	out := []*model.PrescribedExercise{}
	for _, item := range r.items {
		item := item
		if want[item.TreatmentPlanID] {
			out = append(out, &item)
		}
	}
	// unordered on purpose; the assembler sorts
	return out, nil
}

type fakeProfiles struct {
	patients map[uuid.UUID]*model.Profile
	physios  map[uuid.UUID]*model.Profile
}

func pick(m map[uuid.UUID]*model.Profile, ids []uuid.UUID) map[uuid.UUID]*model.Profile {
	out := map[uuid.UUID]*model.Profile{}
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out[id] = p
		}
	}
	return out
}

func (f *fakeProfiles) GetPatient(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, errors.NotFound("patient", nil)
}

func (f *fakeProfiles) GetPhysiotherapist(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	if p, ok := f.physios[id]; ok {
		return p, nil
	}
	return nil, errors.NotFound("physiotherapist", nil)
}

func (f *fakeProfiles) Patients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Profile, error) {
	return pick(f.patients, ids), nil
}

func (f *fakeProfiles) Physiotherapists(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Profile, error) {
	return pick(f.physios, ids), nil
}

type fakeCatalog struct {
	rows map[uuid.UUID]*model.Exercise
}

func (f *fakeCatalog) Get(ctx context.Context, id uuid.UUID) (*model.Exercise, error) {
	if e, ok := f.rows[id]; ok {
		return e, nil
	}
	return nil, errors.NotFound("exercise", nil)
}

func (f *fakeCatalog) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Exercise, error) {
	out := map[uuid.UUID]*model.Exercise{}
	for _, id := range ids {
		if e, ok := f.rows[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetAll(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Exercise, error) {
	out, _ := f.GetMany(ctx, ids)
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, errors.NotFound("exercise", nil)
		}
	}
	return out, nil
}

// fixture is a small clinic: two patients, two physiotherapists and a
// catalog of three exercises.
type fixture struct {
	store   *memStore
	svc     *Service
	clock   time.Time
	patient map[string]*model.Profile
	physio  map[string]*model.Profile
	ex      map[string]*model.Exercise
}

func profile(name string) *model.Profile {
	return &model.Profile{ID: uuid.New(), UserID: uuid.New(), FullName: name, Email: name + "@clinic.test"}
}

func catalogEntry(name string, duration int) *model.Exercise {
	e := &model.Exercise{Name: name, Category: "mobility", Difficulty: "easy", Duration: duration}
	e.ID = uuid.New()
	return e
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		clock:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		patient: map[string]*model.Profile{"alice": profile("Alice"), "bob": profile("Bob")},
		physio:  map[string]*model.Profile{"pat": profile("Pat"), "sam": profile("Sam")},
		ex: map[string]*model.Exercise{
			"squat":  catalogEntry("Squat", 60),
			"bridge": catalogEntry("Glute Bridge", 45),
			"plank":  catalogEntry("Plank", 30),
		},
	}

	profiles := &fakeProfiles{patients: map[uuid.UUID]*model.Profile{}, physios: map[uuid.UUID]*model.Profile{}}
	for _, p := range f.patient {
		profiles.patients[p.ID] = p
	}
	for _, p := range f.physio {
		profiles.physios[p.ID] = p
	}
	catalog := &fakeCatalog{rows: map[uuid.UUID]*model.Exercise{}}
	for _, e := range f.ex {
		catalog.rows[e.ID] = e
	}

	f.svc = NewService(f.store, planRepo{f.store}, itemRepo{f.store}, profiles, catalog, f.store)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	return f
}

func (f *fixture) admin() *model.Actor {
	return &model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
}

func (f *fixture) physioActor(name string) *model.Actor {
	p := f.physio[name]
	return &model.Actor{UserID: p.UserID, Role: model.RolePhysiotherapist, PhysiotherapistID: p.ID}
}

func (f *fixture) patientActor(name string) *model.Actor {
	p := f.patient[name]
	return &model.Actor{UserID: p.UserID, Role: model.RolePatient, PatientID: p.ID}
}
