package reservations

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"reservo/backend/internal/domain"
	"reservo/backend/internal/store"
	"reservo/backend/internal/store/memory"
)

type fakeRepo struct {
	store.ReservationRepository
	getFn                  func(ctx context.Context, id int64) (domain.Reservation, error)
	inBookingTransactionFn func(ctx context.Context, keys store.BookingKeys, fn func(ctx context.Context, tx store.BookingTx) error) error
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeRepo) InBookingTransaction(ctx context.Context, keys store.BookingKeys, fn func(ctx context.Context, tx store.BookingTx) error) error {
	if f.inBookingTransactionFn == nil {
		panic("InBookingTransaction not configured")
	}
	return f.inBookingTransactionFn(ctx, keys, fn)
}

type fakeBookingTx struct {
	store.BookingTx
	getFn func(ctx context.Context, id int64) (domain.Reservation, error)
}

func (f *fakeBookingTx) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

// mapCache keeps entries per generation like the Redis cache does.
type mapCache struct {
	mu          sync.Mutex
	gen         int
	entries     map[string][]domain.Reservation
	hits        int
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]domain.Reservation{}}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]domain.Reservation, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := strconv.Itoa(c.gen)
	rs, ok := c.entries[gen+":"+key]
	if ok {
		c.hits++
	}
	return rs, gen, ok
}

func (c *mapCache) Set(ctx context.Context, gen, key string, rs []domain.Reservation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[gen+":"+key] = rs
}

func (c *mapCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
}

func seededService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc := NewService(memory.New(), opts...)
	if _, err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return svc
}

func TestSeed_InsertsExampleData(t *testing.T) {
	svc := NewService(memory.New())

	msgs, err := svc.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	want := []string{SeedTestedDB, SeedSynchronized, SeedInsertedExamples}
	if len(msgs) != len(want) {
		t.Fatalf("messages = %v, want %v", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Fatalf("messages[%d] = %q, want %q", i, msgs[i], want[i])
		}
	}

	rs, err := svc.List(context.Background(), store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("len = %d, want 3", len(rs))
	}
	if rs[0].Client == nil || rs[0].Client.Name != "L. Palmer" || rs[0].Provider == nil || rs[0].Provider.Name != "Dr. Jacoby" {
		t.Fatalf("relations not loaded: %+v", rs[0])
	}

	// Seeding again starts over instead of conflicting with itself.
	if _, err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	rs, err = svc.List(context.Background(), store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rs) != 3 || rs[0].ID != 1 {
		t.Fatalf("reseed = %+v", rs)
	}
}

func TestCreate_Scenarios(t *testing.T) {
	cases := []struct {
		name  string
		c     Candidate
		kind  Kind
		valid bool
	}{
		{
			name:  "free slot",
			c:     Candidate{Start: time.Date(2020, 10, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2020, 10, 1, 11, 0, 0, 0, time.UTC), ClientID: 2, ProviderID: 1},
			valid: true,
		},
		{
			name: "provider busy",
			c:    Candidate{Start: at(19, 30), End: at(19, 45), ClientID: 2, ProviderID: 1},
			kind: KindConflictDetected,
		},
		{
			name: "touching end counts as overlap",
			c:    Candidate{Start: at(21, 0), End: at(22, 0), ClientID: 1, ProviderID: 1},
			kind: KindConflictDetected,
		},
		{
			name: "start after end",
			c:    Candidate{Start: at(23, 0), End: at(22, 0), ClientID: 1, ProviderID: 1},
			kind: KindInvalidTimeOrder,
		},
		{
			name: "unknown client",
			c:    Candidate{Start: time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2021, 1, 1, 11, 0, 0, 0, time.UTC), ClientID: 99, ProviderID: 1},
			kind: KindUnknownReference,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := seededService(t)
			r, err := svc.Create(context.Background(), tc.c)
			if tc.valid {
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				if r.ID != 4 || r.ClientID != tc.c.ClientID {
					t.Fatalf("created = %+v", r)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Kind != tc.kind {
				t.Fatalf("error = %v, want kind %s", err, tc.kind)
			}

			rs, err := svc.List(context.Background(), store.Filter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(rs) != 3 {
				t.Fatalf("rejected create changed the store: %d reservations", len(rs))
			}
		})
	}
}

func TestReplace_ExcludesItself(t *testing.T) {
	svc := seededService(t)

	r, err := svc.Replace(context.Background(), 1, Candidate{Start: at(18, 30), End: at(20, 0), ClientID: 1, ProviderID: 1})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if !r.Start.Equal(at(18, 30)) {
		t.Fatalf("start = %v, want 18:30", r.Start)
	}

	_, err = svc.Replace(context.Background(), 1, Candidate{Start: at(19, 0), End: at(20, 30), ClientID: 1, ProviderID: 1})
	wantKind(t, err, KindConflictDetected, MsgConflict)

	_, err = svc.Replace(context.Background(), 42, Candidate{Start: time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2021, 1, 1, 11, 0, 0, 0, time.UTC), ClientID: 1, ProviderID: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPatch_MergesThenValidates(t *testing.T) {
	svc := seededService(t)
	ctx := context.Background()

	r, err := svc.Patch(ctx, 1, body(t, `{"end":"2020-09-29 19:30"}`))
	if err != nil {
		t.Fatalf("Patch shrinking own window: %v", err)
	}
	if !r.Start.Equal(at(19, 0)) || !r.End.Equal(at(19, 30)) {
		t.Fatalf("patched = %+v", r)
	}

	_, err = svc.Patch(ctx, 2, body(t, `{"end":"2020-09-29 18:00"}`))
	wantKind(t, err, KindInvalidTimeOrder, MsgInvalidTimeOrder)

	_, err = svc.Patch(ctx, 1, body(t, `{"end":"2020-09-29 20:30"}`))
	wantKind(t, err, KindConflictDetected, MsgConflict)

	r, err = svc.Patch(ctx, 3, body(t, `{"clientId":2}`))
	if err != nil {
		t.Fatalf("Patch client: %v", err)
	}
	if r.ClientID != 2 || r.Client == nil || r.Client.Name != "D. Cooper" {
		t.Fatalf("patched = %+v", r)
	}
}

func TestPatch_CheckOrder(t *testing.T) {
	svc := seededService(t)
	ctx := context.Background()

	// Unknown keys win over a missing reservation.
	_, err := svc.Patch(ctx, 42, body(t, `{"room":"A"}`))
	wantKind(t, err, KindUnacceptedParameter, MsgUnacceptedParameter)

	// A missing reservation wins over malformed values.
	_, err = svc.Patch(ctx, 42, body(t, `{"start":"garbage"}`))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	_, err = svc.Patch(ctx, 1, body(t, `{"start":"garbage"}`))
	wantKind(t, err, KindInvalidValue, "start is not a valid timestamp")
}

func TestPatch_PartiesKeepMovingReportsConflict(t *testing.T) {
	stored := domain.Reservation{ID: 7, Start: at(9, 0), End: at(10, 0), ClientID: 1, ProviderID: 1}
	moved := stored
	moved.ProviderID = 2

	var attempts int
	svc := NewService(&fakeRepo{
		getFn: func(ctx context.Context, id int64) (domain.Reservation, error) {
			return stored, nil
		},
		inBookingTransactionFn: func(ctx context.Context, keys store.BookingKeys, fn func(ctx context.Context, tx store.BookingTx) error) error {
			attempts++
			return fn(ctx, &fakeBookingTx{
				getFn: func(ctx context.Context, id int64) (domain.Reservation, error) {
					return moved, nil
				},
			})
		},
	})

	_, err := svc.Patch(context.Background(), 7, body(t, `{"end":"2020-09-29 10:30"}`))
	wantKind(t, err, KindConflictDetected, MsgConflict)
	if attempts != maxPatchAttempts {
		t.Fatalf("attempts = %d, want %d", attempts, maxPatchAttempts)
	}
}

func TestDelete(t *testing.T) {
	svc := seededService(t)

	if err := svc.Delete(context.Background(), 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(context.Background(), 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestList_UsesCacheUntilWrite(t *testing.T) {
	cache := newMapCache()
	svc := seededService(t, WithListCache(cache))
	ctx := context.Background()

	client := int64(1)
	f := store.Filter{ClientID: &client}
	first, err := svc.List(ctx, f)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len = %d, want 2", len(first))
	}
	if _, err := svc.List(ctx, f); err != nil {
		t.Fatalf("List: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("hits = %d, want 1", cache.hits)
	}

	before := cache.invalidated
	if err := svc.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if cache.invalidated != before+1 {
		t.Fatalf("cache not invalidated on delete")
	}
	after, err := svc.List(ctx, f)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("len = %d, want 1", len(after))
	}
}

func TestList_ResultReadBeforeWriteIsNotServedAfterIt(t *testing.T) {
	cache := newMapCache()
	svc := seededService(t, WithListCache(cache))
	ctx := context.Background()

	_, gen, ok := cache.Get(ctx, "all")
	if ok {
		t.Fatalf("unexpected hit")
	}
	stale, err := svc.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := svc.Create(ctx, Candidate{Start: time.Date(2020, 10, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2020, 10, 1, 11, 0, 0, 0, time.UTC), ClientID: 2, ProviderID: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cache.Set(ctx, gen, "all", stale)

	rs, err := svc.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rs) != 4 {
		t.Fatalf("len = %d, want 4", len(rs))
	}
}

func TestCreate_ConcurrentBookingsOfSameSlot(t *testing.T) {
	svc := seededService(t)
	c := Candidate{
		Start:      time.Date(2020, 10, 2, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2020, 10, 2, 10, 0, 0, 0, time.UTC),
		ClientID:   2,
		ProviderID: 1,
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), c)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		wantKind(t, err, KindConflictDetected, MsgConflict)
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}
}

func TestCreate_StorageConflictTranslated(t *testing.T) {
	svc := NewService(&fakeRepo{
		inBookingTransactionFn: func(ctx context.Context, keys store.BookingKeys, fn func(ctx context.Context, tx store.BookingTx) error) error {
			if len(keys.ClientIDs) != 1 || keys.ClientIDs[0] != 5 || len(keys.ProviderIDs) != 1 || keys.ProviderIDs[0] != 6 {
				t.Fatalf("keys = %+v", keys)
			}
			return store.ErrConflict
		},
	})

	_, err := svc.Create(context.Background(), Candidate{Start: at(9, 0), End: at(10, 0), ClientID: 5, ProviderID: 6})
	wantKind(t, err, KindConflictDetected, MsgConflict)
}
