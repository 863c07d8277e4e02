package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-books/api/internal/platform/config"
	"github.com/inkwell-books/api/internal/repositories"
	"github.com/inkwell-books/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Orders   services.OrderService
	Stock    services.StockService
	Counters services.CounterService
	System   services.SystemService
	Audit    services.AuditLogService
}

// ContainerDeps carries optional collaborators that the container cannot build
// on its own, such as event publishers and the structured logger bridge.
type ContainerDeps struct {
	OrderEvents services.OrderEventPublisher
	StockEvents services.StockEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	AuditLogger services.AuditLogger
	Build       services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services

	if auditRepo := reg.AuditLogs(); auditRepo != nil && cfg.Features.EnableAuditTrail {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
			Logger:     deps.AuditLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	booksRepo := reg.Books()
	if booksRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Books:  booksRepo,
			Audit:  svc.Audit,
			Clock:  time.Now,
			Logger: deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if cartsRepo := reg.Carts(); cartsRepo != nil && booksRepo != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Repository: cartsRepo,
			Books:      booksRepo,
			Clock:      time.Now,
			Logger:     deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	stockRepo := reg.Stock()
	if stockRepo != nil {
		stockSvc, err := services.NewStockService(services.StockServiceDeps{
			Stock:  stockRepo,
			Audit:  svc.Audit,
			Events: deps.StockEvents,
			Clock:  time.Now,
			Logger: deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stock service: %w", err)
		}
		svc.Stock = stockSvc
	}

	if ordersRepo := reg.Orders(); ordersRepo != nil && booksRepo != nil && stockRepo != nil && counterRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:   ordersRepo,
			Books:    booksRepo,
			Carts:    reg.Carts(),
			Stock:    stockRepo,
			Counters: counterRepo,
			Pricing: services.FlatRatePricing{
				TaxRateBasisPoints:    cfg.Pricing.TaxRateBasisPoints,
				ShippingFee:           cfg.Pricing.ShippingFlatFee,
				FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
			},
			Clock:  time.Now,
			Events: deps.OrderEvents,
			Logger: deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		build.Environment = firstNonEmpty(build.Environment, cfg.Security.Environment)
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            build,
			Counters:         svc.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
