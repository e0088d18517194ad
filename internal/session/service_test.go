package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubStore scripts store behavior per call so service rules can be tested
// without a real backend.
type stubStore struct {
	created    []Session
	createErrs []error // shifted per CreateSession call; nil slice means success

	getFn  func(id string) (Session, error)
	findFn func(code string, now time.Time) (Session, error)
	listFn func(f Filter, now time.Time) ([]Session, error)

	deactivated []string
	deleted     []string
}

func (s *stubStore) CreateSession(ctx context.Context, sess *Session) error {
	s.created = append(s.created, *sess)
	if len(s.createErrs) == 0 {
		return nil
	}
	err := s.createErrs[0]
	s.createErrs = s.createErrs[1:]
	return err
}

func (s *stubStore) GetSession(ctx context.Context, id string) (Session, error) {
	if s.getFn != nil {
		return s.getFn(id)
	}
	return Session{}, ErrNotFound
}

func (s *stubStore) FindActiveSessionByCode(ctx context.Context, code string, now time.Time) (Session, error) {
	if s.findFn != nil {
		return s.findFn(code, now)
	}
	return Session{}, ErrNotFound
}

func (s *stubStore) ListActiveSessions(ctx context.Context, f Filter, now time.Time) ([]Session, error) {
	if s.listFn != nil {
		return s.listFn(f, now)
	}
	return nil, nil
}

func (s *stubStore) DeactivateSession(ctx context.Context, id string) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

func (s *stubStore) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

var frozen = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithClock(func() time.Time { return frozen })}, opts...)
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestCreateStampsLifecycleFields(t *testing.T) {
	st := &stubStore{}
	svc := newTestService(t, st)

	sess, err := svc.Create(context.Background(), CreateSessionInput{
		CongregationID: "cong-1",
		CreatedBy:      "user-1",
		MapNumber:      7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated id")
	}
	if len(sess.Code) != DefaultCodeLength {
		t.Fatalf("expected %d-digit code, got %q", DefaultCodeLength, sess.Code)
	}
	if !sess.IsActive {
		t.Fatal("new session must be active")
	}
	if !sess.CreatedAt.Equal(frozen) {
		t.Fatalf("created_at=%v, want %v", sess.CreatedAt, frozen)
	}
	if want := frozen.Add(DefaultTTL); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at=%v, want %v", sess.ExpiresAt, want)
	}
	if len(st.created) != 1 {
		t.Fatalf("expected 1 store write, got %d", len(st.created))
	}
}

func TestCreateHonorsTTLAndCodeLengthOptions(t *testing.T) {
	st := &stubStore{}
	svc := newTestService(t, st, WithTTL(2*time.Hour), WithCodeLength(6))

	sess, err := svc.Create(context.Background(), CreateSessionInput{
		CongregationID: "cong-1",
		CreatedBy:      "user-1",
		MapNumber:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", sess.Code)
	}
	if want := frozen.Add(2 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at=%v, want %v", sess.ExpiresAt, want)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(t, &stubStore{})
	cases := []CreateSessionInput{
		{CongregationID: "", CreatedBy: "u", MapNumber: 1},
		{CongregationID: "  ", CreatedBy: "u", MapNumber: 1},
		{CongregationID: "c", CreatedBy: "", MapNumber: 1},
		{CongregationID: "c", CreatedBy: "u", MapNumber: 0},
		{CongregationID: "c", CreatedBy: "u", MapNumber: -3},
	}
	for _, in := range cases {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Create(%+v): expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestCreateRetriesTakenCodes(t *testing.T) {
	st := &stubStore{createErrs: []error{ErrCodeTaken, ErrCodeTaken, nil}}
	svc := newTestService(t, st)

	sess, err := svc.Create(context.Background(), CreateSessionInput{
		CongregationID: "cong-1",
		CreatedBy:      "user-1",
		MapNumber:      2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.created) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(st.created))
	}
	if got := st.created[2].Code; got != sess.Code {
		t.Fatalf("returned code %q is not the stored one %q", sess.Code, got)
	}
	// each attempt must carry a fresh identity, not a reused row
	if st.created[0].ID == st.created[2].ID {
		t.Fatal("retry reused the session id")
	}
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	st := &stubStore{createErrs: []error{ErrCodeTaken, ErrCodeTaken, ErrCodeTaken, ErrCodeTaken, ErrCodeTaken}}
	svc := newTestService(t, st)

	_, err := svc.Create(context.Background(), CreateSessionInput{
		CongregationID: "cong-1",
		CreatedBy:      "user-1",
		MapNumber:      2,
	})
	if !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
	if len(st.created) != 5 {
		t.Fatalf("expected 5 attempts, got %d", len(st.created))
	}
}

func TestCreateStopsOnUnexpectedStoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	st := &stubStore{createErrs: []error{boom}}
	svc := newTestService(t, st)

	_, err := svc.Create(context.Background(), CreateSessionInput{
		CongregationID: "cong-1",
		CreatedBy:      "user-1",
		MapNumber:      2,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(st.created) != 1 {
		t.Fatalf("expected no retry on unexpected error, got %d attempts", len(st.created))
	}
}

func TestFindByCodeTrimsAndValidates(t *testing.T) {
	st := &stubStore{findFn: func(code string, now time.Time) (Session, error) {
		if code != "4217" {
			return Session{}, ErrNotFound
		}
		if !now.Equal(frozen) {
			return Session{}, errors.New("wrong clock")
		}
		return Session{ID: "s1", Code: code}, nil
	}}
	svc := newTestService(t, st)

	sess, err := svc.FindByCode(context.Background(), "  4217 ")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "s1" {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, err := svc.FindByCode(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank code, got %v", err)
	}
}

func TestListActiveRequiresCongregation(t *testing.T) {
	svc := newTestService(t, &stubStore{})
	if _, err := svc.ListActive(context.Background(), Filter{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIDRequiredOnLifecycleOps(t *testing.T) {
	svc := newTestService(t, &stubStore{})
	ctx := context.Background()

	if _, err := svc.Get(ctx, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Get: expected ErrInvalidInput, got %v", err)
	}
	if err := svc.Deactivate(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Deactivate: expected ErrInvalidInput, got %v", err)
	}
	if err := svc.Delete(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Delete: expected ErrInvalidInput, got %v", err)
	}
}

func TestJoinable(t *testing.T) {
	sess := Session{IsActive: true, ExpiresAt: frozen.Add(time.Hour)}
	if !sess.Joinable(frozen) {
		t.Fatal("active unexpired session must be joinable")
	}
	if sess.Joinable(frozen.Add(time.Hour)) {
		t.Fatal("session at expiry must not be joinable")
	}
	sess.IsActive = false
	if sess.Joinable(frozen) {
		t.Fatal("deactivated session must not be joinable")
	}
}
