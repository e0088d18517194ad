package auth

import "context"

// Principal is the authenticated caller with resolved congregation bindings.
type Principal struct {
	UserID   string
	Bindings []Binding
}

// HasBinding reports whether the principal holds the role in the given
// congregation. An overseer binding satisfies a volunteer check for the
// same congregation.
func (p Principal) HasBinding(congregationID, role string) bool {
	if congregationID == "" {
		return false
	}
	for _, b := range p.Bindings {
		if b.CongregationID != congregationID {
			continue
		}
		if b.Role == role {
			return true
		}
		if role == RoleVolunteer && b.Role == RoleOverseer {
			return true
		}
	}
	return false
}

// CanManage reports whether the principal may open, close, list, and export
// sessions for the congregation.
func (p Principal) CanManage(congregationID string) bool {
	return p.HasBinding(congregationID, RoleOverseer)
}

// CanRecord reports whether the principal may append to ledgers of the
// congregation's sessions.
func (p Principal) CanRecord(congregationID string) bool {
	return p.HasBinding(congregationID, RoleVolunteer)
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
