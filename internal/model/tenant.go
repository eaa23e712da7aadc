package model

import "time"

type Tenant struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	AccessToken string    `db:"access_token"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
