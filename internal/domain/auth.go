package domain

// Principal is the authenticated caller, resolved from bearer token claims.
type Principal struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// SystemPrincipal acts for scheduled jobs.
var SystemPrincipal = Principal{ID: "system", Name: "System", Role: RoleManager}
