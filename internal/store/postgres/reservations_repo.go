package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"reservo/backend/internal/domain"
	"reservo/backend/internal/store"
)

const (
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

type ReservationRepo struct {
	db *bun.DB
}

func NewReservationRepo(db *bun.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

// bookingTx runs reservation queries against either the pool or an open
// transaction.
type bookingTx struct {
	db bun.IDB
}

func (r *ReservationRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ReservationRepo) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	return bookingTx{db: r.db}.Get(ctx, id)
}

func (r *ReservationRepo) Delete(ctx context.Context, id int64) error {
	return bookingTx{db: r.db}.Delete(ctx, id)
}

func (r *ReservationRepo) Find(ctx context.Context, f store.Filter) ([]domain.Reservation, error) {
	return bookingTx{db: r.db}.Find(ctx, f)
}

func (r *ReservationRepo) InBookingTransaction(ctx context.Context, keys store.BookingKeys, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, key := range bookingLockKeys(keys) {
			if err := lockBookingKey(ctx, tx, key); err != nil {
				return err
			}
		}
		return fn(ctx, bookingTx{db: tx})
	})
}

func lockBookingKey(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

// bookingLockKeys returns the advisory lock keys in a stable order so that
// concurrent transactions always acquire them in the same sequence.
func bookingLockKeys(keys store.BookingKeys) []string {
	seen := make(map[string]struct{}, len(keys.ClientIDs)+len(keys.ProviderIDs))
	out := make([]string, 0, len(keys.ClientIDs)+len(keys.ProviderIDs))
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	for _, id := range keys.ClientIDs {
		add(fmt.Sprintf("reservo:client:%d", id))
	}
	for _, id := range keys.ProviderIDs {
		add(fmt.Sprintf("reservo:provider:%d", id))
	}
	sort.Strings(out)
	return out
}

func (r *ReservationRepo) Reset(ctx context.Context) error {
	_, err := r.db.NewRaw("TRUNCATE TABLE reservations, clients, service_providers RESTART IDENTITY CASCADE").Exec(ctx)
	return err
}

func (r *ReservationRepo) CreateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	m := domain.Client{Name: c.Name}
	if _, err := r.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return domain.Client{}, err
	}
	return m, nil
}

func (r *ReservationRepo) CreateServiceProvider(ctx context.Context, p domain.ServiceProvider) (domain.ServiceProvider, error) {
	m := domain.ServiceProvider{Name: p.Name}
	if _, err := r.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return domain.ServiceProvider{}, err
	}
	return m, nil
}

// FindConflicts spells out the inclusive overlap rule: a stored start or end
// inside the candidate window, or a stored window enclosing it.
func (t bookingTx) FindConflicts(ctx context.Context, cq store.ConflictQuery) ([]domain.Reservation, error) {
	start, end := cq.Window.Start, cq.Window.End

	var rows []domain.Reservation
	q := t.db.NewSelect().
		Model(&rows).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("client_id = ?", cq.ClientID).
				WhereOr("provider_id = ?", cq.ProviderID)
		})
	if cq.ExcludeID != domain.NoExclusion {
		q = q.Where("id <> ?", cq.ExcludeID)
	}
	q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("start_time BETWEEN ? AND ?", start, end).
			WhereOr("end_time BETWEEN ? AND ?", start, end).
			WhereOr("start_time <= ? AND end_time >= ?", start, end)
	})

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t bookingTx) Find(ctx context.Context, f store.Filter) ([]domain.Reservation, error) {
	var rows []domain.Reservation
	q := t.db.NewSelect().
		Model(&rows).
		Relation("Client").
		Relation("Provider")

	if f.Window != nil {
		q = q.Where("?TableAlias.start_time >= ?", f.Window.Start).
			Where("?TableAlias.end_time <= ?", f.Window.End)
	}
	if f.ProviderID != nil {
		q = q.Where("?TableAlias.provider_id = ?", *f.ProviderID)
	}
	if f.ClientID != nil {
		q = q.Where("?TableAlias.client_id = ?", *f.ClientID)
	}

	err := q.OrderExpr("?TableAlias.start_time ASC, ?TableAlias.id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t bookingTx) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	var m domain.Reservation
	err := t.db.NewSelect().
		Model(&m).
		Relation("Client").
		Relation("Provider").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, store.ErrNotFound
		}
		return domain.Reservation{}, err
	}
	return m, nil
}

func (t bookingTx) Create(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	m := domain.Reservation{
		Start:      r.Start,
		End:        r.End,
		ClientID:   r.ClientID,
		ProviderID: r.ProviderID,
	}

	if _, err := t.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		return domain.Reservation{}, mapWriteError(err)
	}
	return t.Get(ctx, m.ID)
}

func (t bookingTx) Update(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	m := domain.Reservation{
		ID:         r.ID,
		Start:      r.Start,
		End:        r.End,
		ClientID:   r.ClientID,
		ProviderID: r.ProviderID,
	}

	res, err := t.db.NewUpdate().
		Model(&m).
		Column("start_time", "end_time", "client_id", "provider_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Reservation{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Reservation{}, err
	}
	if affected == 0 {
		return domain.Reservation{}, store.ErrNotFound
	}
	return t.Get(ctx, m.ID)
}

func (t bookingTx) Delete(ctx context.Context, id int64) error {
	res, err := t.db.NewDelete().
		Model((*domain.Reservation)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgExclusionViolation && strings.HasPrefix(pgErr.ConstraintName, "reservations_"):
		return store.ErrConflict
	case pgErr.Code == pgForeignKeyViolation:
		return store.ErrUnknownReference
	}
	return err
}
