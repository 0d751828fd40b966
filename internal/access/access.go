package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleAdmin, RoleSuperadmin}

var (
	// ErrUnknownRole is returned by ParseRole for values outside the enum.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownPrincipal is returned by resolvers when the subject has no account.
	ErrUnknownPrincipal = errors.New("unknown principal")
)

// ParseRole normalizes and validates a stored role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperadmin:
		return RoleSuperadmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Action is an operation subject to authorization.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
	ActionDelete   Action = "delete"
	ActionList     Action = "list"
	ActionCreate   Action = "create"
)

// Actions lists every action.
var Actions = []Action{ActionView, ActionDownload, ActionDelete, ActionList, ActionCreate}

// Principal is the resolved caller identity.
type Principal struct {
	ID   string
	Role Role
}

// PrincipalResolver maps an authenticated subject to a Principal.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, subject string) (Principal, error)
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Authorize decides whether p may perform a on a document owned by ownerID.
// ownerID is ignored for ActionList and ActionCreate.
func Authorize(p Principal, ownerID string, a Action) Decision {
	if strings.TrimSpace(p.ID) == "" {
		return deny("anonymous principal")
	}
	owns := ownerID != "" && ownerID == p.ID

	switch p.Role {
	case RoleUser:
		switch a {
		case ActionView, ActionDownload, ActionDelete:
			if owns {
				return allow("owner")
			}
			return deny("not owner")
		case ActionList:
			return allow("own documents only")
		case ActionCreate:
			return allow("user upload")
		}
	case RoleAdmin:
		switch a {
		case ActionView, ActionDownload, ActionDelete, ActionList, ActionCreate:
			return deny("admin role has no document access")
		}
	case RoleSuperadmin:
		switch a {
		case ActionView, ActionDownload, ActionList:
			return allow("superadmin")
		case ActionDelete:
			return allow("superadmin may delete any document")
		case ActionCreate:
			return deny("superadmin has no upload path")
		}
	}
	return deny(fmt.Sprintf("no rule for role %q action %q", p.Role, a))
}

// ListScope reports which documents p may list: only ownerID's, or all of them.
func ListScope(p Principal) (ownerID string, all bool, d Decision) {
	d = Authorize(p, "", ActionList)
	if !d.Allowed {
		return "", false, d
	}
	if p.Role == RoleSuperadmin {
		return "", true, d
	}
	return p.ID, false, d
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
