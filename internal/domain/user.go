package domain

import "time"

// User is a platform account. PasswordHash never leaves the service layer.
type User struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	FullName     string    `db:"full_name"`
	PasswordHash string    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`

	Participations []Participation `db:"-" rel:"participations,user_id"`
}

func (User) TableName() string { return "users" }
