package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shadiflow/internal/storage/jsonfile"
)

type memPersister struct {
	mu          sync.Mutex
	doc         []byte
	saves       int
	failSave    error
	loadErr     error
	quarantined bool
}

func (m *memPersister) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.doc, nil
}

func (m *memPersister) Save(_ context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.doc = append([]byte(nil), doc...)
	m.saves++
	return nil
}

func (m *memPersister) Quarantine(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quarantined = true
	m.doc = nil
	return "memory", nil
}

func (m *memPersister) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 3, 14, 18, 30, 5, 0, time.UTC)
	return func() time.Time { return at }
}

func openTestStore(t *testing.T, p Persister) *Store {
	t.Helper()
	s, err := Open(context.Background(), p, WithClock(fixedClock()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestLedgerScenario(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, &memPersister{})

	if _, err := s.CreateGroup(ctx, "QWERTYUIO", "ali"); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if !s.GroupExists("QWERTYUIO") {
		t.Fatal("GroupExists() = false after create")
	}
	members := s.Members("QWERTYUIO")
	if len(members) != 1 || members[0].Username != "ali" || members[0].UserID != 1 {
		t.Fatalf("Members() = %+v, want creator as user 1", members)
	}

	if _, err := s.AddExpense(ctx, "QWERTYUIO", 1, "ali", "Venue Booking", 50000, "Venue"); err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}
	if got := s.ExpenseSummary("QWERTYUIO"); got.Total != 50000 || got.Count != 1 {
		t.Errorf("ExpenseSummary() = %+v, want {50000 1}", got)
	}

	sara, err := s.AddMember(ctx, "QWERTYUIO", "sara")
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if sara.UserID != 2 {
		t.Errorf("second member user id = %d, want 2", sara.UserID)
	}
	if n := len(s.Members("QWERTYUIO")); n != 2 {
		t.Errorf("member count = %d, want 2", n)
	}

	if _, err := s.AddExpense(ctx, "QWERTYUIO", sara.UserID, "sara", "Mehndi Decor", 15000, "Decoration"); err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}
	buckets := s.MemberSummary("QWERTYUIO")
	if len(buckets) != 2 {
		t.Fatalf("MemberSummary() = %+v", buckets)
	}
	if buckets[0].Key != "ali" || buckets[0].Total != 50000 || buckets[0].Count != 1 {
		t.Errorf("first bucket = %+v", buckets[0])
	}
	if buckets[1].Key != "sara" || buckets[1].Total != 15000 || buckets[1].Count != 1 {
		t.Errorf("second bucket = %+v", buckets[1])
	}

	const missing = "ZZZZZZZZZ"
	if s.GroupExists(missing) {
		t.Error("GroupExists(missing) = true")
	}
	if got := s.Members(missing); len(got) != 0 {
		t.Errorf("Members(missing) = %+v", got)
	}
	if got := s.Expenses(missing); len(got) != 0 {
		t.Errorf("Expenses(missing) = %+v", got)
	}
	if got := s.ExpenseSummary(missing); got.Total != 0 || got.Count != 0 {
		t.Errorf("ExpenseSummary(missing) = %+v", got)
	}
	if got := s.CategorySummary(missing); len(got) != 0 {
		t.Errorf("CategorySummary(missing) = %+v", got)
	}
}

func TestCreateGroupRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := openTestStore(t, p)

	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	_, err := s.CreateGroup(ctx, "ABCDEFGHJ", "sara")
	if !errors.Is(err, ErrGroupExists) {
		t.Fatalf("CreateGroup() duplicate error = %v, want ErrGroupExists", err)
	}
	if n := len(s.Groups()); n != 1 {
		t.Errorf("Groups() length = %d, want 1", n)
	}
	if n := len(s.Members("ABCDEFGHJ")); n != 1 {
		t.Errorf("member count = %d, want 1", n)
	}
}

func TestCreateGroupFlushesOnce(t *testing.T) {
	p := &memPersister{}
	s := openTestStore(t, p)

	if _, err := s.CreateGroup(context.Background(), "ABCDEFGHJ", "ali"); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if p.saves != 1 {
		t.Errorf("saves = %d, want 1", p.saves)
	}
}

func TestAddMemberIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, &memPersister{})
	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}

	m, created, err := s.AddMemberIfAbsent(ctx, "ABCDEFGHJ", "ali")
	if err != nil || created || m.UserID != 1 {
		t.Errorf("AddMemberIfAbsent(existing) = %+v, %v, %v", m, created, err)
	}
	m, created, err = s.AddMemberIfAbsent(ctx, "ABCDEFGHJ", "sara")
	if err != nil || !created || m.UserID != 2 {
		t.Errorf("AddMemberIfAbsent(new) = %+v, %v, %v", m, created, err)
	}
}

func TestUserIDsArePerGroup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, &memPersister{})
	for _, id := range []string{"AAAAAAAAA", "BBBBBBBBB"} {
		if _, err := s.CreateGroup(ctx, id, "ali"); err != nil {
			t.Fatal(err)
		}
	}
	m, err := s.AddMember(ctx, "BBBBBBBBB", "sara")
	if err != nil {
		t.Fatal(err)
	}
	if m.UserID != 2 {
		t.Errorf("user id = %d, want 2", m.UserID)
	}
}

func TestFlushFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := openTestStore(t, p)
	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}

	var observed []error
	s.onFlush = func(_ time.Duration, err error) { observed = append(observed, err) }
	p.failSave = errors.New("disk full")

	if _, err := s.AddExpense(ctx, "ABCDEFGHJ", 1, "ali", "Stage", 1000, "Decoration"); err == nil {
		t.Fatal("AddExpense() expected error")
	}
	if _, err := s.CreateGroup(ctx, "KLMNPQRST", "sara"); err == nil {
		t.Fatal("CreateGroup() expected error")
	}
	if got := s.Expenses("ABCDEFGHJ"); len(got) != 0 {
		t.Errorf("expense survived failed flush: %+v", got)
	}
	if s.GroupExists("KLMNPQRST") {
		t.Error("group survived failed flush")
	}
	if n := len(s.Members("KLMNPQRST")); n != 0 {
		t.Errorf("creator member survived failed flush: %d", n)
	}
	if len(observed) != 2 || observed[0] == nil {
		t.Errorf("flush observer saw %v", observed)
	}
}

func TestReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	p, err := jsonfile.New(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, p, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMember(ctx, "ABCDEFGHJ", "sara"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddExpense(ctx, "ABCDEFGHJ", 2, "sara", "Photographer", 80000, "Photography"); err != nil {
		t.Fatal(err)
	}
	wantGroups, wantMembers, wantExpenses := s.Groups(), s.Members("ABCDEFGHJ"), s.Expenses("ABCDEFGHJ")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	p2, err := jsonfile.New(path)
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(ctx, p2, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	gotGroups := reopened.Groups()
	if len(gotGroups) != 1 || gotGroups[0] != wantGroups[0] {
		t.Errorf("groups after reload = %+v, want %+v", gotGroups, wantGroups)
	}
	gotMembers := reopened.Members("ABCDEFGHJ")
	if len(gotMembers) != len(wantMembers) {
		t.Fatalf("members after reload = %+v", gotMembers)
	}
	for i := range wantMembers {
		if gotMembers[i] != wantMembers[i] {
			t.Errorf("member %d = %+v, want %+v", i, gotMembers[i], wantMembers[i])
		}
	}
	gotExpenses := reopened.Expenses("ABCDEFGHJ")
	if len(gotExpenses) != 1 || gotExpenses[0] != wantExpenses[0] {
		t.Errorf("expenses after reload = %+v, want %+v", gotExpenses, wantExpenses)
	}
}

func TestPersistedDocumentShape(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := openTestStore(t, p)
	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddExpense(ctx, "ABCDEFGHJ", 1, "ali", "Venue", 50000, "Venue"); err != nil {
		t.Fatal(err)
	}

	doc := string(p.doc)
	for _, want := range []string{
		`"groups": [`, `"members": [`, `"expenses": [`,
		`"group_id": "ABCDEFGHJ"`, `"created_by": "ali"`, `"user_id": 1`,
		`"expense_name": "Venue"`, `"amount": 50000`,
		`"date": "2025-03-14"`, `"time": "18:30:05"`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("persisted document missing %s\n%s", want, doc)
		}
	}
}

func TestOpenCorruptDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte(`{"groups": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := jsonfile.New(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, p, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v, corrupt state should not fail open", err)
	}
	if n := len(s.Groups()); n != 0 {
		t.Errorf("Groups() = %d, want empty", n)
	}

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("quarantined files = %v, want one", matches)
	}
	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"groups": [` {
		t.Errorf("quarantined content changed: %q", raw)
	}
}

func TestOpenLoadError(t *testing.T) {
	p := &memPersister{loadErr: errors.New("permission denied")}
	s := openTestStore(t, p)
	if n := len(s.Groups()); n != 0 {
		t.Errorf("Groups() = %d, want empty", n)
	}
	if !p.quarantined {
		t.Error("unreadable document was not quarantined")
	}
}

func TestReadOnlyStoreNeverWrites(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	owner := openTestStore(t, p)
	if _, err := owner.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}

	snap, err := Open(ctx, p, WithReadOnly(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !snap.GroupExists("ABCDEFGHJ") {
		t.Fatal("read-only store did not load the document")
	}

	if _, err := owner.AddExpense(ctx, "ABCDEFGHJ", 1, "ali", "Venue Booking", 50000, "Venue"); err != nil {
		t.Fatal(err)
	}
	savesBefore := p.saves

	if _, err := snap.AddExpense(ctx, "ABCDEFGHJ", 1, "ali", "Cake", 100, "Food"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("AddExpense() error = %v, want ErrReadOnly", err)
	}
	if n := len(snap.Expenses("ABCDEFGHJ")); n != 0 {
		t.Errorf("rejected expense kept in memory: %d", n)
	}
	if err := snap.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.saves != savesBefore {
		t.Errorf("saves = %d, want %d", p.saves, savesBefore)
	}

	reopened := openTestStore(t, p)
	if got := reopened.ExpenseSummary("ABCDEFGHJ"); got.Count != 1 || got.Total != 50000 {
		t.Errorf("ExpenseSummary() after read-only close = %+v, want one expense of 50000", got)
	}
}

func TestReadOnlyStoreSkipsQuarantine(t *testing.T) {
	p := &memPersister{loadErr: errors.New("permission denied")}
	if _, err := Open(context.Background(), p, WithReadOnly(), WithLogger(quietLogger())); err != nil {
		t.Fatal(err)
	}
	if p.quarantined {
		t.Error("read-only open quarantined the document")
	}
}

func TestOpenNilPersister(t *testing.T) {
	if _, err := Open(context.Background(), nil); err == nil {
		t.Error("Open(nil) expected error")
	}
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := openTestStore(t, p)
	if _, err := s.CreateGroup(ctx, "ABCDEFGHJ", "ali"); err != nil {
		t.Fatal(err)
	}

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("user%d", w)
			m, err := s.AddMember(ctx, "ABCDEFGHJ", name)
			if err != nil {
				t.Error(err)
				return
			}
			for i := 0; i < perWriter; i++ {
				if _, err := s.AddExpense(ctx, "ABCDEFGHJ", m.UserID, name, "item", 10, "Other"); err != nil {
					t.Error(err)
					return
				}
				s.ExpenseSummary("ABCDEFGHJ")
			}
		}(w)
	}
	wg.Wait()

	got := s.ExpenseSummary("ABCDEFGHJ")
	if got.Count != writers*perWriter || got.Total != writers*perWriter*10 {
		t.Errorf("ExpenseSummary() = %+v", got)
	}

	seen := map[int]bool{}
	for _, m := range s.Members("ABCDEFGHJ") {
		if seen[m.UserID] {
			t.Errorf("duplicate user id %d", m.UserID)
		}
		seen[m.UserID] = true
	}
	if len(seen) != writers+1 {
		t.Errorf("distinct user ids = %d, want %d", len(seen), writers+1)
	}
}
