package sqlite

import (
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// NewRepositories wires all SQLite repositories over one connection.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Books:   NewBookRepository(db),
		Copies:  NewCopyRepository(db),
		Users:   NewUserRepository(db),
		Events:  NewEventRepository(db),
		Lending: NewLendingRepository(db),
	}
}
