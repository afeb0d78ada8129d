// Package user provides the user entity the console acts on.
package user

// Status represents the account state of a user.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeleted:
		return true
	default:
		return false
	}
}

// User is a console-managed account. The console only reads its role and
// status and issues mutations through the Repository.
type User struct {
	id        string
	email     string
	name      string
	role      string
	status    Status
}

// Reconstruct recreates a User from persisted data.
func Reconstruct(id, email, name, role string, status Status) *User {
	return &User{
		id:     id,
		email:  email,
		name:   name,
		role:   role,
		status: status,
	}
}

// ID returns the user ID.
func (u *User) ID() string { return u.id }

// Email returns the user's email.
func (u *User) Email() string { return u.email }

// Name returns the user's display name.
func (u *User) Name() string { return u.name }

// Role returns the user's role name.
func (u *User) Role() string { return u.role }

// Status returns the account status.
func (u *User) Status() Status { return u.status }

// IsActive returns true if the user is active.
func (u *User) IsActive() bool { return u.status == StatusActive }

// IsDeleted returns true if the user has been deleted.
func (u *User) IsDeleted() bool { return u.status == StatusDeleted }
