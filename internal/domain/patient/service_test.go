package patient

import (
	"context"
	"errors"
	"testing"
)

// =========== Mock Repository ===========

type mockRepo struct {
	identities  map[int]*Identity
	statistical map[int]*Statistical
	failStats   error
	txCalls     int
}

func newMockRepo() *mockRepo {
	return &mockRepo{identities: make(map[int]*Identity), statistical: make(map[int]*Statistical)}
}

func (m *mockRepo) MaxID(_ context.Context) (int, bool, error) {
	maxID, ok := 0, false
	for id := range m.identities {
		if !ok || id > maxID {
			maxID, ok = id, true
		}
	}
	return maxID, ok, nil
}

func (m *mockRepo) Exists(_ context.Context, id int) (bool, error) {
	_, ok := m.identities[id]
	return ok, nil
}

func (m *mockRepo) CreateIdentity(_ context.Context, p *Identity) error {
	m.identities[p.PatientID] = p
	return nil
}

func (m *mockRepo) CreateStatistical(_ context.Context, s *Statistical) error {
	if m.failStats != nil {
		return m.failStats
	}
	m.statistical[s.PatientID] = s
	return nil
}

// WithinTx snapshots the identity table and restores it when fn fails.
func (m *mockRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txCalls++
	snapshot := make(map[int]*Identity, len(m.identities))
	for k, v := range m.identities {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		m.identities = snapshot
		return err
	}
	return nil
}

func validRegistration() *Registration {
	return &Registration{
		PatientID:              1500,
		Name:                   "Ana Horvat",
		MBO:                    "123456789",
		DateOfBirth:            "1950-06-02",
		DateOfSampleCollection: "2024-06-01",
		Sex:                    "F",
		Eye:                    "R",
	}
}

// =========== Tests ===========

func TestService_NextID_Floor(t *testing.T) {
	svc := NewService(newMockRepo(), 1500)
	next, err := svc.NextID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 1500 {
		t.Errorf("expected floor 1500 on an empty table, got %d", next)
	}
}

func TestService_NextID_AfterMax(t *testing.T) {
	repo := newMockRepo()
	repo.identities[1500] = &Identity{PatientID: 1500}
	repo.identities[1507] = &Identity{PatientID: 1507}
	svc := NewService(repo, 1500)

	next, err := svc.NextID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 1508 {
		t.Errorf("expected 1508, got %d", next)
	}
}

func TestService_NextID_BelowFloor(t *testing.T) {
	repo := newMockRepo()
	repo.identities[12] = &Identity{PatientID: 12}
	svc := NewService(repo, 1500)

	next, _ := svc.NextID(context.Background())
	if next != 1500 {
		t.Errorf("expected floor to win, got %d", next)
	}
}

func TestService_NextID_Exhausted(t *testing.T) {
	repo := newMockRepo()
	repo.identities[MaxID] = &Identity{PatientID: MaxID}
	svc := NewService(repo, 1500)

	if _, err := svc.NextID(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestService_NewService_InvalidFloor(t *testing.T) {
	svc := NewService(newMockRepo(), 0)
	next, _ := svc.NextID(context.Background())
	if next != MinID {
		t.Errorf("expected %d, got %d", MinID, next)
	}
}

func TestService_Available(t *testing.T) {
	repo := newMockRepo()
	repo.identities[1500] = &Identity{PatientID: 1500}
	svc := NewService(repo, 1500)
	ctx := context.Background()

	if ok, _ := svc.Available(ctx, 1500); ok {
		t.Error("expected 1500 to be taken")
	}
	if ok, _ := svc.Available(ctx, 1501); !ok {
		t.Error("expected 1501 to be available")
	}
	for _, id := range []int{0, 100000} {
		if _, err := svc.Available(ctx, id); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for %d, got %v", id, err)
		}
	}
}

func TestService_Register(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, 1500)

	st, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.PersonHash != PersonHash("123456789") {
		t.Errorf("unexpected hash %s", st.PersonHash)
	}
	if st.Age == nil || *st.Age != 73 {
		t.Errorf("expected age 73, got %v", st.Age)
	}
	if repo.txCalls != 1 {
		t.Errorf("expected one transaction, got %d", repo.txCalls)
	}
	if _, ok := repo.identities[1500]; !ok {
		t.Error("identity not stored")
	}
	if _, ok := repo.statistical[1500]; !ok {
		t.Error("statistical record not stored")
	}
}

func TestService_Register_WithoutDates(t *testing.T) {
	svc := NewService(newMockRepo(), 1500)
	r := validRegistration()
	r.DateOfBirth = ""
	st, err := svc.Register(context.Background(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Age != nil {
		t.Errorf("expected nil age, got %d", *st.Age)
	}
}

func TestService_Register_Duplicate(t *testing.T) {
	repo := newMockRepo()
	repo.identities[1500] = &Identity{PatientID: 1500}
	svc := NewService(repo, 1500)

	if _, err := svc.Register(context.Background(), validRegistration()); !errors.Is(err, ErrIDTaken) {
		t.Errorf("expected ErrIDTaken, got %v", err)
	}
}

func TestService_Register_RollsBack(t *testing.T) {
	repo := newMockRepo()
	repo.failStats = errors.New("insert failed")
	svc := NewService(repo, 1500)

	if _, err := svc.Register(context.Background(), validRegistration()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := repo.identities[1500]; ok {
		t.Error("identity must be rolled back when the statistical insert fails")
	}
}

func TestService_Register_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Registration)
	}{
		{"id too low", func(r *Registration) { r.PatientID = 0 }},
		{"id too high", func(r *Registration) { r.PatientID = 100000 }},
		{"missing name", func(r *Registration) { r.Name = "  " }},
		{"short mbo", func(r *Registration) { r.MBO = "12345" }},
		{"bad sex", func(r *Registration) { r.Sex = "X" }},
		{"bad eye", func(r *Registration) { r.Eye = "R+L" }},
		{"bad date", func(r *Registration) { r.DateOfBirth = "02.06.1950" }},
		{"collection before birth", func(r *Registration) { r.DateOfSampleCollection = "1940-01-01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := NewService(repo, 1500)
			r := validRegistration()
			tt.mutate(r)
			if _, err := svc.Register(context.Background(), r); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if repo.txCalls != 0 {
				t.Error("validation failures must not open a transaction")
			}
		})
	}
}
