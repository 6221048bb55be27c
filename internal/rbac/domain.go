package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Role is the coarse label stored on a user's profile.
type Role uint8

// Roles. RoleUnset is the zero value and belongs to no group.
const (
	RoleUnset Role = iota
	RoleAdmin
	RoleLibrarian
	RoleMember
)

// ParseRole converts the stored role tag into a Role. The empty string is RoleUnset.
func ParseRole(s string) (Role, error) {
	switch strings.TrimSpace(s) {
	case "":
		return RoleUnset, nil
	case "Admin":
		return RoleAdmin, nil
	case "Librarian":
		return RoleLibrarian, nil
	case "Member":
		return RoleMember, nil
	default:
		return RoleUnset, fmt.Errorf("rbac: unknown role %q", s)
	}
}

// String returns the stored role tag.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleLibrarian:
		return "Librarian"
	case RoleMember:
		return "Member"
	case RoleUnset:
		return ""
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Action is an operation on a resource.
type Action string

// Actions.
const (
	ActionList     Action = "list"
	ActionRetrieve Action = "retrieve"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
)

// IsRead reports whether the action only reads.
func (a Action) IsRead() bool {
	return a == ActionList || a == ActionRetrieve
}

// Codename returns the permission codename guarding the action.
func (a Action) Codename() Codename {
	switch a {
	case ActionCreate:
		return CanCreate
	case ActionUpdate:
		return CanEdit
	case ActionDelete:
		return CanDelete
	default:
		return CanView
	}
}

// ResourceType names a guarded entity.
type ResourceType string

// Resource types.
const (
	ResourceBook    ResourceType = "book"
	ResourceAuthor  ResourceType = "author"
	ResourcePost    ResourceType = "post"
	ResourceComment ResourceType = "comment"
)

// Codename is a permission action codename.
type Codename string

// Codenames.
const (
	CanView   Codename = "can_view"
	CanCreate Codename = "can_create"
	CanEdit   Codename = "can_edit"
	CanDelete Codename = "can_delete"
)

// Permission is an atomic capability.
type Permission struct {
	Codename Codename     `json:"codename"`
	Resource ResourceType `json:"resource"`
}

// String renders the permission as resource.codename.
func (p Permission) String() string {
	return string(p.Resource) + "." + string(p.Codename)
}

// Group is a named permission set.
type Group string

// Groups.
const (
	GroupViewers Group = "Viewers"
	GroupEditors Group = "Editors"
	GroupAdmins  Group = "Admins"
)

// Owned is implemented by resources that record the user who created them.
type Owned interface {
	OwnerID() int64
}

// Identity describes the caller of a request. The zero value is anonymous.
type Identity struct {
	UserID   int64
	Username string
	Role     Role
}

// Anonymous returns the unauthenticated identity.
func Anonymous() Identity {
	return Identity{}
}

// IsAuthenticated reports whether the identity belongs to a user.
func (i Identity) IsAuthenticated() bool {
	return i.UserID > 0
}

// Owns reports whether the identity created res.
func (i Identity) Owns(res Owned) bool {
	return res != nil && i.IsAuthenticated() && res.OwnerID() == i.UserID
}

// IsAdmin reports whether the identity carries the Admin role.
func IsAdmin(i Identity) bool {
	return i.IsAuthenticated() && i.Role.is(RoleAdmin)
}

// IsLibrarian reports whether the identity carries the Librarian role.
func IsLibrarian(i Identity) bool {
	return i.IsAuthenticated() && i.Role.is(RoleLibrarian)
}

// IsMember reports whether the identity carries the Member role.
func IsMember(i Identity) bool {
	return i.IsAuthenticated() && i.Role.is(RoleMember)
}

func (r Role) is(target Role) bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleMember:
		return r == target
	case RoleUnset:
		return false
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the caller identity, anonymous when none was stored.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}
