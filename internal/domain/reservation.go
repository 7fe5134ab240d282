package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// NoExclusion is the ExcludeID used when a candidate is not replacing a stored reservation.
const NoExclusion int64 = 0

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	Start      time.Time `bun:"start_time,notnull" json:"start"`
	End        time.Time `bun:"end_time,notnull" json:"end"`
	ClientID   int64     `bun:"client_id,notnull" json:"clientId"`
	ProviderID int64     `bun:"provider_id,notnull" json:"providerId"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updatedAt"`

	Client   *Client          `bun:"rel:belongs-to,join:client_id=id" json:"client,omitempty"`
	Provider *ServiceProvider `bun:"rel:belongs-to,join:provider_id=id" json:"serviceProvider,omitempty"`
}

func (r Reservation) Window() Window {
	return Window{Start: r.Start, End: r.End}
}

func (r *Reservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

type Client struct {
	bun.BaseModel `bun:"table:clients"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
}

type ServiceProvider struct {
	bun.BaseModel `bun:"table:service_providers"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Username     string    `bun:"username,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		if u.UpdatedAt.IsZero() {
			u.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		u.UpdatedAt = now
	}
	return nil
}
