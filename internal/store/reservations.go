package store

import (
	"context"

	"reservo/backend/internal/domain"
)

// ConflictQuery selects stored reservations that share the client or the
// provider with a candidate and overlap its window.
type ConflictQuery struct {
	ClientID   int64
	ProviderID int64
	Window     domain.Window
	ExcludeID  int64
}

func (q ConflictQuery) Matches(r domain.Reservation) bool {
	if r.ClientID != q.ClientID && r.ProviderID != q.ProviderID {
		return false
	}
	if q.ExcludeID != domain.NoExclusion && r.ID == q.ExcludeID {
		return false
	}
	return q.Window.Overlaps(r.Window())
}

// Filter is the read predicate for listing. Zero fields are unconstrained and
// set fields are combined with AND.
type Filter struct {
	Window     *domain.Window
	ClientID   *int64
	ProviderID *int64
}

func (f Filter) Matches(r domain.Reservation) bool {
	if f.Window != nil && !f.Window.Contains(r.Window()) {
		return false
	}
	if f.ClientID != nil && r.ClientID != *f.ClientID {
		return false
	}
	if f.ProviderID != nil && r.ProviderID != *f.ProviderID {
		return false
	}
	return true
}

func (f Filter) IsZero() bool {
	return f.Window == nil && f.ClientID == nil && f.ProviderID == nil
}

type ConflictFinder interface {
	FindConflicts(ctx context.Context, q ConflictQuery) ([]domain.Reservation, error)
}

// BookingTx is the view of the store available while the booking locks for a
// set of clients and providers are held.
type BookingTx interface {
	ConflictFinder
	Get(ctx context.Context, id int64) (domain.Reservation, error)
	Create(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	Update(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	Delete(ctx context.Context, id int64) error
}

// BookingKeys names the parties whose schedules a transaction may change.
type BookingKeys struct {
	ClientIDs   []int64
	ProviderIDs []int64
}

type ReservationRepository interface {
	Get(ctx context.Context, id int64) (domain.Reservation, error)
	Find(ctx context.Context, f Filter) ([]domain.Reservation, error)
	Delete(ctx context.Context, id int64) error

	// InBookingTransaction runs fn with the overlap check and the write
	// serialized against other bookings touching the same keys.
	InBookingTransaction(ctx context.Context, keys BookingKeys, fn func(ctx context.Context, tx BookingTx) error) error

	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	CreateClient(ctx context.Context, c domain.Client) (domain.Client, error)
	CreateServiceProvider(ctx context.Context, p domain.ServiceProvider) (domain.ServiceProvider, error)
}

type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	UpsertUser(ctx context.Context, u domain.User) (domain.User, error)
}
