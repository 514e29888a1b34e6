package postgres

import (
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// NewRepositories creates all PostgreSQL repository implementations
// sharing one connection pool.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Books:   NewBookRepository(db),
		Copies:  NewCopyRepository(db),
		Users:   NewUserRepository(db),
		Events:  NewEventRepository(db),
		Lending: NewLendingRepository(db),
	}
}
