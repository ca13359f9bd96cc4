package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	// RoleUser is a regular assessment owner.
	RoleUser UserRole = "USER"
	// RoleOperator may manage generated-content cache versions and jobs.
	RoleOperator UserRole = "OPERATOR"
)
