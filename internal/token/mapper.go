package token

import "fmt"

// RolesClaimOut is the outbound claim name the inbound role list is
// carried under. The rename preserves provenance and keeps the inbound
// schema from colliding with whatever role semantics the backend applies
// to its own claims.
const RolesClaimOut = "teleport_roles"

// Map extracts the subject identity and the extra claims to carry into a
// minted token. identityClaim names the inbound username claim (Teleport
// emits "username"; deployments that emit "user_name" configure that
// instead). rolesClaim names the inbound role list; when present it is
// copied under RolesClaimOut.
//
// Map is deterministic and side-effect free.
func Map(inbound ClaimSet, identityClaim, rolesClaim string) (string, ClaimSet, error) {
	subject, ok := inbound.String(identityClaim)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrMissingIdentity, identityClaim)
	}

	extra := ClaimSet{}
	if roles, ok := inbound.StringList(rolesClaim); ok {
		extra[RolesClaimOut] = roles
	}
	return subject, extra, nil
}
