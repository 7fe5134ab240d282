// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"reservo/backend/internal/domain"
	"reservo/backend/internal/store"
)

type Store struct {
	mu sync.Mutex

	reservations map[int64]domain.Reservation
	clients      map[int64]domain.Client
	providers    map[int64]domain.ServiceProvider
	users        map[string]domain.User

	nextReservationID int64
	nextClientID      int64
	nextProviderID    int64
	nextUserID        int64
}

func New() *Store {
	s := &Store{users: make(map[string]domain.User)}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.reservations = make(map[int64]domain.Reservation)
	s.clients = make(map[int64]domain.Client)
	s.providers = make(map[int64]domain.ServiceProvider)
	s.nextReservationID = 0
	s.nextClientID = 0
	s.nextProviderID = 0
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Store) CreateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClientID++
	c.ID = s.nextClientID
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) CreateServiceProvider(ctx context.Context, p domain.ServiceProvider) (domain.ServiceProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProviderID++
	p.ID = s.nextProviderID
	s.providers[p.ID] = p
	return p, nil
}

func (s *Store) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bookingTx{s: s}.Get(ctx, id)
}

func (s *Store) Find(ctx context.Context, f store.Filter) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		if f.Matches(r) {
			out = append(out, s.withRelations(r))
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bookingTx{s: s}.Delete(ctx, id)
}

// InBookingTransaction holds the store lock for the whole of fn and restores
// the previous reservations when fn fails.
func (s *Store) InBookingTransaction(ctx context.Context, keys store.BookingKeys, fn func(ctx context.Context, tx store.BookingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[int64]domain.Reservation, len(s.reservations))
	for id, r := range s.reservations {
		snapshot[id] = r
	}
	nextID := s.nextReservationID

	if err := fn(ctx, bookingTx{s: s}); err != nil {
		s.reservations = snapshot
		s.nextReservationID = nextID
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.Username]; ok {
		u.ID = existing.ID
	} else {
		s.nextUserID++
		u.ID = s.nextUserID
	}
	s.users[u.Username] = u
	return u, nil
}

func (s *Store) withRelations(r domain.Reservation) domain.Reservation {
	if c, ok := s.clients[r.ClientID]; ok {
		r.Client = &c
	}
	if p, ok := s.providers[r.ProviderID]; ok {
		r.Provider = &p
	}
	return r
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Start.Equal(rs[j].Start) {
			return rs[i].Start.Before(rs[j].Start)
		}
		return rs[i].ID < rs[j].ID
	})
}

// bookingTx operates on s with s.mu already held.
type bookingTx struct {
	s *Store
}

func (t bookingTx) FindConflicts(ctx context.Context, q store.ConflictQuery) ([]domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Reservation
	for _, r := range t.s.reservations {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t bookingTx) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	r, ok := t.s.reservations[id]
	if !ok {
		return domain.Reservation{}, store.ErrNotFound
	}
	return t.s.withRelations(r), nil
}

func (t bookingTx) Create(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	if err := t.checkReferences(r); err != nil {
		return domain.Reservation{}, err
	}
	t.s.nextReservationID++
	r.ID = t.s.nextReservationID
	r.Client, r.Provider = nil, nil
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	t.s.reservations[r.ID] = r
	return t.s.withRelations(r), nil
}

func (t bookingTx) Update(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	existing, ok := t.s.reservations[r.ID]
	if !ok {
		return domain.Reservation{}, store.ErrNotFound
	}
	if err := t.checkReferences(r); err != nil {
		return domain.Reservation{}, err
	}
	r.Client, r.Provider = nil, nil
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	t.s.reservations[r.ID] = r
	return t.s.withRelations(r), nil
}

func (t bookingTx) Delete(ctx context.Context, id int64) error {
	if _, ok := t.s.reservations[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.s.reservations, id)
	return nil
}

func (t bookingTx) checkReferences(r domain.Reservation) error {
	if _, ok := t.s.clients[r.ClientID]; !ok {
		return store.ErrUnknownReference
	}
	if _, ok := t.s.providers[r.ProviderID]; !ok {
		return store.ErrUnknownReference
	}
	return nil
}
