package domain

type UserID string

type UserRole string

const (
	RoleModel  UserRole = "model"
	RoleViewer UserRole = "viewer"
	RoleAdmin  UserRole = "admin"
)

// User is the locally cached identity record. Only the role matters to the
// broadcast core: publishing requires RoleModel.
type User struct {
	ID       UserID
	Username string
	Role     UserRole
}

// CanPublish reports whether this identity may start a broadcast session.
func (u User) CanPublish() bool {
	return u.Role == RoleModel
}
