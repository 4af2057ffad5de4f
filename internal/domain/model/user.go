package model

import (
	"net/url"
	"strings"
	"time"

	"course-entitlements/internal/domain"

	"github.com/google/uuid"
)

// PlaceholderUserName is used when the payer supplied no name.
const PlaceholderUserName = "Recovered User"

// User is an account that can own purchases and subscriptions.
// Users are created lazily by the resolver and never deleted by the engine.
type User struct {
	ID        string
	Email     string
	Name      string
	Image     string
	CreatedAt time.Time
}

// NewUser builds a user for a payer email. The display name is derived from
// first/last name when available.
func NewUser(id, email, firstName, lastName string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if strings.TrimSpace(firstName) == "" {
		name = PlaceholderUserName
	}
	return &User{
		ID:        id,
		Email:     email,
		Name:      name,
		Image:     "https://ui-avatars.com/api/?name=" + url.QueryEscape(email) + "&background=random",
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
