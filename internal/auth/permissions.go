package auth

// Permission is a named API capability.
type Permission string

// Permission constants.
const (
	PermLinkRead    Permission = "link:read"
	PermLinkControl Permission = "link:control"
	PermPeerRead    Permission = "peer:read"
	PermEventStream Permission = "events:stream"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermLinkRead,
		PermPeerRead,
		PermEventStream,
	},
	RoleOperator: {
		PermLinkRead,
		PermLinkControl,
		PermPeerRead,
		PermEventStream,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
