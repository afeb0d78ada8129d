package main

import (
	"github.com/openlearn/admin-api/internal/infra/postgres"
)

// Repositories holds the Postgres adapters.
type Repositories struct {
	User  *postgres.UserRepository
	Audit *postgres.AuditRepository
	Role  *postgres.RoleRepository
}

// NewRepositories initializes all repositories.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		User:  postgres.NewUserRepository(db),
		Audit: postgres.NewAuditRepository(db),
		Role:  postgres.NewRoleRepository(db),
	}
}
