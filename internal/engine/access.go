package engine

import (
	"github.com/rs/zerolog"

	"lattice-backend/internal/auth"
	"lattice-backend/internal/schema"
)

// ValidateAccess resolves the permission string for an action from the
// schema's permission map (or the naming-convention fallback) and delegates
// the check. Denials log the action, entity and resolved permission but
// surface only a generic message.
func ValidateAccess(doc *schema.Document, action string, authz auth.Authorizer, user *auth.UserContext, logger zerolog.Logger) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}

	permission := doc.Permission(action)
	if authz.Can(user, permission) {
		return nil
	}

	logger.Warn().
		Str("entity", doc.Entity).
		Str("action", action).
		Str("permission", permission).
		Str("actor", user.ID).
		Strs("roles", user.Roles).
		Msg("access denied")
	return ForbiddenError()
}
