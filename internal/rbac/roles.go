package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleViewer     = "viewer"
	RoleAgent      = "agent" // voice agent service account, hidden
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// IsHiddenRole reports machine roles that must be allowed explicitly.
func IsHiddenRole(role string) bool { return role == RoleAgent }
