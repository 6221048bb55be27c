package rbac

import (
	"fmt"

	"github.com/libris-hub/libris/internal/shared"
)

// Outcome is the verdict of an authorization check.
type Outcome uint8

// Outcomes.
const (
	Allow Outcome = iota
	DenyUnauthenticated
	DenyForbidden
)

// Decision is the result of Engine.Authorize.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Err converts a denial into the matching domain error, nil when allowed.
func (d Decision) Err() error {
	switch d.Outcome {
	case DenyUnauthenticated:
		return shared.Unauthenticated(d.Reason)
	case DenyForbidden:
		return shared.Forbidden(d.Reason)
	default:
		return nil
	}
}

func allow() Decision {
	return Decision{Outcome: Allow}
}

func unauthenticated() Decision {
	return Decision{Outcome: DenyUnauthenticated, Reason: shared.ErrUnauthenticated.Message}
}

func forbidden(reason string) Decision {
	return Decision{Outcome: DenyForbidden, Reason: reason}
}

// Engine evaluates (identity, action, resource) triples against a Policy.
type Engine struct {
	policy *Policy
}

// NewEngine constructs an Engine.
func NewEngine(policy *Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy exposes the loaded policy.
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Authorize decides whether id may perform action on a resource of type rt.
// res is the addressed resource for update and delete, nil for list, create and anonymous reads.
func (e *Engine) Authorize(id Identity, action Action, rt ResourceType, res Owned) Decision {
	if action.IsRead() {
		return allow()
	}
	if !id.IsAuthenticated() {
		return unauthenticated()
	}
	switch {
	case e.policy.IsOwnerScoped(rt):
		if action == ActionCreate {
			return allow()
		}
		if id.Owns(res) {
			return allow()
		}
		return forbidden(fmt.Sprintf("only the owner may %s this %s", action, rt))
	case e.policy.IsCatalog(rt):
		group, ok := e.policy.GroupOf(id.Role)
		if !ok {
			return forbidden("no role assigned")
		}
		if e.policy.Grants(group, action.Codename(), rt) {
			return allow()
		}
		return forbidden(fmt.Sprintf("%s lacks %s on %s", group, action.Codename(), rt))
	default:
		return forbidden(fmt.Sprintf("unknown resource type %q", rt))
	}
}

// Check is Authorize returning the denial as an error.
func (e *Engine) Check(id Identity, action Action, rt ResourceType, res Owned) error {
	return e.Authorize(id, action, rt, res).Err()
}

// EffectivePermissions lists the group permissions held by the identity.
func (e *Engine) EffectivePermissions(id Identity) []Permission {
	if !id.IsAuthenticated() {
		return nil
	}
	return e.policy.Permissions(id.Role)
}
