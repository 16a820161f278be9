package handlers

import (
	"time"

	"photoframe/internal/database"
	"photoframe/internal/queue"
	"photoframe/internal/storage"
)

type Handlers struct {
	db        *database.Database
	queue     *queue.Manager
	storage   *storage.Manager
	startedAt time.Time
}

func New(db *database.Database, qm *queue.Manager, sm *storage.Manager) *Handlers {
	return &Handlers{
		db:        db,
		queue:     qm,
		storage:   sm,
		startedAt: time.Now(),
	}
}
