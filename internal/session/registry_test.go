package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlmesa/sqlmesa/internal/dbconn"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// mockSession returns a session whose handle closes against a sqlmock
// expectation, so tests can assert the connection was released.
func mockSession(t *testing.T, id string) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	return &Session{ID: id, Dialect: "postgresql", Handle: &dbconn.Handle{DB: db, Dialect: "postgresql"}}, mock
}

func TestStoreGetRoundTrip(t *testing.T) {
	r := newTestRegistry()
	s, _ := mockSession(t, "s1")
	r.Store(s, time.Minute)

	got, ok := r.Get("s1")
	if !ok {
		t.Fatal("expected session to be present")
	}
	if got.ID != "s1" || got.Dialect != "postgresql" {
		t.Fatalf("Get() = %+v", got)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d", r.Len())
	}
}

func TestGetEvictsExpiredEntry(t *testing.T) {
	r := newTestRegistry()
	s, mock := mockSession(t, "s1")
	mock.ExpectClose()
	r.Store(s, 0)

	if _, ok := r.Get("s1"); ok {
		t.Fatal("zero ttl session should be expired on first access")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after eviction", r.Len())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("connection not closed: %v", err)
	}
}

func TestGetRefreshesExpiry(t *testing.T) {
	r := newTestRegistry()
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	s, _ := mockSession(t, "s1")
	r.Store(s, 10*time.Second)

	now = now.Add(8 * time.Second)
	if _, ok := r.Get("s1"); !ok {
		t.Fatal("session should still be live")
	}

	// 8s + 8s exceeds the original ttl but the first Get pushed expiry.
	now = now.Add(8 * time.Second)
	if _, ok := r.Get("s1"); !ok {
		t.Fatal("access should have refreshed the ttl")
	}

	now = now.Add(11 * time.Second)
	if _, ok := r.Get("s1"); ok {
		t.Fatal("session should have expired")
	}
}

func TestRemoveClosesAndIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	s, mock := mockSession(t, "s1")
	// A close failure is logged, not surfaced.
	mock.ExpectClose().WillReturnError(fmt.Errorf("already closed"))
	r.Store(s, time.Minute)

	if !r.Remove("s1") {
		t.Fatal("Remove() should report true for a live session")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("connection not closed: %v", err)
	}
	if r.Remove("s1") {
		t.Fatal("second Remove() should report false")
	}
	if r.Remove("never-stored") {
		t.Fatal("Remove() of unknown id should report false")
	}
}

func TestStoreReplacesAndClosesPrevious(t *testing.T) {
	r := newTestRegistry()
	first, firstMock := mockSession(t, "s1")
	firstMock.ExpectClose()
	second, _ := mockSession(t, "s1")

	r.Store(first, time.Minute)
	r.Store(second, time.Minute)

	if err := firstMock.ExpectationsWereMet(); err != nil {
		t.Fatalf("previous connection not closed: %v", err)
	}
	got, ok := r.Get("s1")
	if !ok || got != second {
		t.Fatal("expected replacement session")
	}
}

func TestConcurrentStoreOfDistinctIDs(t *testing.T) {
	r := newTestRegistry()
	const n = 50

	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		s, _ := mockSession(t, fmt.Sprintf("s%d", i))
		sessions[i] = s
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Store(sessions[i], time.Minute)
		}(i)
	}
	wg.Wait()

	if r.Len() != n {
		t.Fatalf("Len() = %d, want %d", r.Len(), n)
	}
	for i := 0; i < n; i++ {
		if _, ok := r.Get(fmt.Sprintf("s%d", i)); !ok {
			t.Fatalf("session s%d missing", i)
		}
	}
}

func TestSweepEvictsWithoutTraffic(t *testing.T) {
	r := newTestRegistry()
	s, mock := mockSession(t, "s1")
	mock.ExpectClose()
	r.Store(s, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Sweep(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for r.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not evict in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("connection not closed: %v", err)
	}
}

func TestCloseEvictsEverything(t *testing.T) {
	r := newTestRegistry()
	mocks := make([]sqlmock.Sqlmock, 3)
	for i := 0; i < 3; i++ {
		s, mock := mockSession(t, fmt.Sprintf("s%d", i))
		mock.ExpectClose()
		mocks[i] = mock
		r.Store(s, time.Minute)
	}
	r.Close()

	if r.Len() != 0 {
		t.Fatalf("Len() = %d after Close", r.Len())
	}
	for i, mock := range mocks {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("connection %d not closed: %v", i, err)
		}
	}
}
