package domain

// ──────────────────────────────────────────────────────────────────────────────
// CallerRole
// ──────────────────────────────────────────────────────────────────────────────

// CallerRole is the role claim carried by bearer tokens issued by the external
// identity provider. Users themselves are owned by that provider; the store
// only references their ids.
type CallerRole string

const (
	RoleRiskEngine        CallerRole = "risk-engine"        // writes risk checks and margin snapshots
	RoleBreakerController CallerRole = "breaker-controller" // trips and resolves circuit breakers
	RoleOperator          CallerRole = "operator"           // back-office read access
	RoleReader            CallerRole = "reader"             // presentation layer, read only
	RoleAdmin             CallerRole = "admin"              // everything
)

// CanWriteRiskRecords reports whether the role may record risk checks and
// margin calculations.
func (r CallerRole) CanWriteRiskRecords() bool {
	return r == RoleRiskEngine || r == RoleAdmin
}

// CanControlBreakers reports whether the role may record or resolve
// circuit-breaker events.
func (r CallerRole) CanControlBreakers() bool {
	return r == RoleBreakerController || r == RoleAdmin
}

// CanAccessBackoffice returns true for operator-tier roles.
func (r CallerRole) CanAccessBackoffice() bool {
	return r == RoleOperator || r == RoleAdmin
}

// IsKnown reports whether r is one of the recognised roles.
func (r CallerRole) IsKnown() bool {
	switch r {
	case RoleRiskEngine, RoleBreakerController, RoleOperator, RoleReader, RoleAdmin:
		return true
	}
	return false
}
