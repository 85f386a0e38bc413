package session

// Identity is the authenticated user as issued by the auth provider.
// It is read-only for the rest of the application.
type Identity struct {
	ID          string
	Username    string
	DisplayName string
}
