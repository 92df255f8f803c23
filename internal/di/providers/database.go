package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/librarium/librarium-server/internal/config"
	"github.com/librarium/librarium-server/internal/events"
	"github.com/librarium/librarium-server/internal/logger"
	"github.com/librarium/librarium-server/internal/store"
)

// PublisherHandle wraps the event publisher with its context for lifecycle management.
type PublisherHandle struct {
	*events.Publisher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *PublisherHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Publisher.Shutdown(ctx)
}

// ProvidePublisher provides the catalog event publisher.
func ProvidePublisher(i do.Injector) (*PublisherHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	publisher := events.NewPublisher(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go publisher.Start(ctx)

	log.Info("Event publisher started")

	return &PublisherHandle{
		Publisher: publisher,
		cancel:    cancel,
	}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := cfg.DatabasePath()
	db, err := store.New(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
