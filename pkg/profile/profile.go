package profile

import (
	"errors"

	"github.com/centsible/centsible/pkg/store"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the public slice of an identity kept in the profiles table:
// the handle and display name other users see. Owned by the auth provider,
// read-only here.
type Profile struct {
	ID          string
	Username    string
	DisplayName string
}

func FromRow(row store.Row) (Profile, error) {
	id := row.ID()
	if id == "" {
		return Profile{}, errors.New("profile row has no id")
	}
	return Profile{
		ID:          id,
		Username:    row.String("username"),
		DisplayName: row.String("displayname"),
	}, nil
}
