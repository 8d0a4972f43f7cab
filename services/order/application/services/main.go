// Package services wires this bounded context's infrastructure into the
// shared dispatch fabric. All application logic lives in CQRS handlers
// — this package's only job is constructing the repository/cache and
// registering handlers on the Application container's registries.
package services

import (
	"fmt"

	"github.com/sodacore/sodacore/pkg/app"
	"github.com/sodacore/sodacore/pkg/cache"
	"github.com/sodacore/sodacore/services/order/application/handlers"
	"github.com/sodacore/sodacore/services/order/infrastructure/persistence/postgres"
)

// Wire constructs the order bounded context's repository and cache from
// the Application container, and registers all of its command, query,
// and event handlers. Call once during application startup.
func Wire(a *app.Application) error {
	repo := postgres.NewOrderRepository(a.Db, a.EventBus)
	orderCache := cache.NewOrderCache(a.Redis)

	if err := handlers.Register(a.Commands, a.Queries, a.EventBus, a.Facade, repo, orderCache); err != nil {
		return fmt.Errorf("wire order bounded context: %w", err)
	}
	return nil
}
