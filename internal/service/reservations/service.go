package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"reservo/backend/internal/domain"
	"reservo/backend/internal/store"
)

// ListCache holds listing results between writes. Implementations treat
// their own failures as a miss.
//
// Get returns an opaque generation token even on a miss. Set stores under
// that token, so a result read before an Invalidate is never visible after
// it.
type ListCache interface {
	Get(ctx context.Context, key string) (rs []domain.Reservation, gen string, ok bool)
	Set(ctx context.Context, gen, key string, rs []domain.Reservation)
	Invalidate(ctx context.Context)
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]domain.Reservation, string, bool) {
	return nil, "", false
}
func (noCache) Set(context.Context, string, string, []domain.Reservation) {}
func (noCache) Invalidate(context.Context)                                {}

// maxPatchAttempts bounds retries when the stored parties of a patched
// reservation change between the unlocked read and the booking transaction.
const maxPatchAttempts = 3

var errPartiesChanged = errors.New("reservation parties changed during patch")

type Service struct {
	repo  store.ReservationRepository
	cache ListCache
	loc   *time.Location
	log   *slog.Logger
}

type Option func(*Service)

func WithListCache(c ListCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLocation sets the zone used for zone-less timestamps in seed data.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(repo store.ReservationRepository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		cache: noCache{},
		loc:   time.UTC,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, c Candidate) (domain.Reservation, error) {
	c.ExcludeID = domain.NoExclusion

	var created domain.Reservation
	err := s.repo.InBookingTransaction(ctx, keysFor(c), func(ctx context.Context, tx store.BookingTx) error {
		if err := NewValidator(tx).Validate(ctx, c); err != nil {
			return err
		}
		r, err := tx.Create(ctx, c.reservation(0))
		if err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return domain.Reservation{}, translate(err)
	}

	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "reservation created",
		"reservation_id", created.ID,
		"client_id", created.ClientID,
		"provider_id", created.ProviderID,
	)
	return created, nil
}

// Replace overwrites every field of reservation id. The conflict check
// ignores the reservation being replaced.
func (s *Service) Replace(ctx context.Context, id int64, c Candidate) (domain.Reservation, error) {
	c.ExcludeID = id

	var updated domain.Reservation
	err := s.repo.InBookingTransaction(ctx, keysFor(c), func(ctx context.Context, tx store.BookingTx) error {
		if err := NewValidator(tx).Validate(ctx, c); err != nil {
			return err
		}
		r, err := tx.Update(ctx, c.reservation(id))
		if err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return domain.Reservation{}, translate(err)
	}

	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "reservation replaced", "reservation_id", id)
	return updated, nil
}

// Patch applies a partial update given as the raw request body. Unknown
// keys are rejected first, then a missing reservation is reported, and only
// then are the supplied values parsed and the merged result validated.
func (s *Service) Patch(ctx context.Context, id int64, body map[string]json.RawMessage) (domain.Reservation, error) {
	if err := checkPatchKeys(body); err != nil {
		return domain.Reservation{}, err
	}
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Reservation{}, translate(err)
	}
	p, err := parsePatchValues(body, s.loc)
	if err != nil {
		return domain.Reservation{}, err
	}

	for attempt := 1; ; attempt++ {
		r, err := s.patchOnce(ctx, id, p, stored)
		if errors.Is(err, errPartiesChanged) {
			// Another writer keeps moving the reservation between parties.
			if attempt >= maxPatchAttempts {
				return domain.Reservation{}, conflictError()
			}
			if stored, err = s.repo.Get(ctx, id); err != nil {
				return domain.Reservation{}, translate(err)
			}
			continue
		}
		if err != nil {
			return domain.Reservation{}, translate(err)
		}

		s.cache.Invalidate(ctx)
		s.log.InfoContext(ctx, "reservation patched", "reservation_id", id)
		return r, nil
	}
}

func (s *Service) patchOnce(ctx context.Context, id int64, p Patch, stored domain.Reservation) (domain.Reservation, error) {
	locked := p.Apply(stored)

	// The lock keys also cover the stored parties so that a concurrent
	// booking for the old client or provider cannot interleave.
	keys := keysFor(locked)
	keys.ClientIDs = append(keys.ClientIDs, stored.ClientID)
	keys.ProviderIDs = append(keys.ProviderIDs, stored.ProviderID)

	var updated domain.Reservation
	err := s.repo.InBookingTransaction(ctx, keys, func(ctx context.Context, tx store.BookingTx) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		c := p.Apply(current)
		if c.ClientID != locked.ClientID || c.ProviderID != locked.ProviderID {
			return errPartiesChanged
		}
		if err := NewValidator(tx).Validate(ctx, c); err != nil {
			return err
		}
		r, err := tx.Update(ctx, c.reservation(id))
		if err != nil {
			return err
		}
		updated = r
		return nil
	})
	return updated, err
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(err)
	}
	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "reservation deleted", "reservation_id", id)
	return nil
}

func (s *Service) List(ctx context.Context, f store.Filter) ([]domain.Reservation, error) {
	key := filterKey(f)
	cached, gen, ok := s.cache.Get(ctx, key)
	if ok {
		return cached, nil
	}

	rs, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find reservations: %w", err)
	}
	if rs == nil {
		rs = []domain.Reservation{}
	}
	s.cache.Set(ctx, gen, key, rs)
	return rs, nil
}

const (
	SeedTestedDB         = "OK - Tested DB"
	SeedSynchronized     = "OK - Synchronized models"
	SeedInsertedExamples = "OK - Inserted example data to DB"
)

type seedReservation struct {
	start, end string
	client     int
	provider   int
}

var seedReservations = []seedReservation{
	{start: "2020-09-29 19:00", end: "2020-09-29 20:00", client: 0, provider: 0},
	{start: "2020-09-29 20:01", end: "2020-09-29 21:00", client: 1, provider: 0},
	{start: "2020-09-30 12:00", end: "2020-09-30 13:00", client: 0, provider: 0},
}

// Seed wipes all reservation data and inserts the example data set. The
// returned messages report each completed step, including when a later step
// fails.
func (s *Service) Seed(ctx context.Context) ([]string, error) {
	var done []string

	if err := s.repo.Ping(ctx); err != nil {
		return done, fmt.Errorf("ping: %w", err)
	}
	done = append(done, SeedTestedDB)

	if err := s.repo.Reset(ctx); err != nil {
		return done, fmt.Errorf("reset: %w", err)
	}
	s.cache.Invalidate(ctx)
	done = append(done, SeedSynchronized)

	var clients []domain.Client
	for _, name := range []string{"L. Palmer", "D. Cooper"} {
		c, err := s.repo.CreateClient(ctx, domain.Client{Name: name})
		if err != nil {
			return done, fmt.Errorf("create client: %w", err)
		}
		clients = append(clients, c)
	}
	provider, err := s.repo.CreateServiceProvider(ctx, domain.ServiceProvider{Name: "Dr. Jacoby"})
	if err != nil {
		return done, fmt.Errorf("create service provider: %w", err)
	}
	providers := []domain.ServiceProvider{provider}

	for _, sr := range seedReservations {
		start, err := domain.ParseTimestamp(sr.start, s.loc)
		if err != nil {
			return done, err
		}
		end, err := domain.ParseTimestamp(sr.end, s.loc)
		if err != nil {
			return done, err
		}
		c := Candidate{
			Start:      start,
			End:        end,
			ClientID:   clients[sr.client].ID,
			ProviderID: providers[sr.provider].ID,
		}
		if _, err := s.Create(ctx, c); err != nil {
			return done, fmt.Errorf("seed reservation: %w", err)
		}
	}
	done = append(done, SeedInsertedExamples)

	s.log.InfoContext(ctx, "example data inserted", "reservations", len(seedReservations))
	return done, nil
}

func keysFor(c Candidate) store.BookingKeys {
	return store.BookingKeys{
		ClientIDs:   []int64{c.ClientID},
		ProviderIDs: []int64{c.ProviderID},
	}
}

// translate turns storage rejections that carry a user-facing meaning into
// validation errors. Everything else passes through.
func translate(err error) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return conflictError()
	case errors.Is(err, store.ErrUnknownReference):
		return unknownReferenceError()
	default:
		return err
	}
}
