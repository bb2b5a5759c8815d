package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vasiliy-maslov/fulfillment-core/internal/cart"
	"github.com/vasiliy-maslov/fulfillment-core/internal/catalog"
	"github.com/vasiliy-maslov/fulfillment-core/internal/config"
	"github.com/vasiliy-maslov/fulfillment-core/internal/coverage"
	"github.com/vasiliy-maslov/fulfillment-core/internal/delivery"
	"github.com/vasiliy-maslov/fulfillment-core/internal/geo"
	"github.com/vasiliy-maslov/fulfillment-core/internal/handler"
	"github.com/vasiliy-maslov/fulfillment-core/internal/inventory"
	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
	"github.com/vasiliy-maslov/fulfillment-core/internal/order"
	"github.com/vasiliy-maslov/fulfillment-core/internal/payment"
	"github.com/vasiliy-maslov/fulfillment-core/internal/slot"
	"github.com/vasiliy-maslov/fulfillment-core/internal/store"
)

// App is the wired engine: the router plus the background workers main has
// to run.
type App struct {
	Router  *chi.Mux
	Sweeper *inventory.Sweeper
}

// storeDirectory adapts the store repository to the slice of data the
// coverage index needs.
type storeDirectory struct {
	repo store.Repository
}

func (d storeDirectory) StoreInfo(ctx context.Context, id uuid.UUID) (coverage.StoreInfo, error) {
	s, err := d.repo.GetStore(ctx, id)
	if err != nil {
		return coverage.StoreInfo{}, err
	}
	return coverage.StoreInfo{
		ID:                    s.ID,
		Code:                  s.Code,
		Name:                  s.Name,
		DeliveryFee:           s.DeliveryFee,
		MinOrderValue:         s.MinOrderValue,
		FreeDeliveryThreshold: s.FreeDeliveryThreshold,
	}, nil
}

// NewApp wires every service against postgres when a pool is given, or
// against the in-memory repositories otherwise.
func NewApp(pool *pgxpool.Pool, cfg config.EngineConfig) *App {
	var (
		storeRepo     store.Repository
		coverageRepo  coverage.Repository
		catalogRepo   catalog.Repository
		inventoryRepo inventory.Repository
		cartRepo      cart.Repository
		slotRepo      slot.Repository
		orderRepo     order.Repository
		deliveryRepo  delivery.Repository
	)
	if pool != nil {
		storeRepo = store.NewPostgresRepository(pool)
		coverageRepo = coverage.NewPostgresRepository(pool)
		catalogRepo = catalog.NewPostgresRepository(pool)
		inventoryRepo = inventory.NewPostgresRepository(pool)
		cartRepo = cart.NewPostgresRepository(pool)
		slotRepo = slot.NewPostgresRepository(pool)
		orderRepo = order.NewPostgresRepository(pool)
		deliveryRepo = delivery.NewPostgresRepository(pool)
	} else {
		storeRepo = store.NewMemoryRepository()
		coverageRepo = coverage.NewMemoryRepository()
		catalogRepo = catalog.NewMemoryRepository()
		inventoryRepo = inventory.NewMemoryRepository()
		cartRepo = cart.NewMemoryRepository()
		slotRepo = slot.NewMemoryRepository()
		orderRepo = order.NewMemoryRepository()
		deliveryRepo = delivery.NewMemoryRepository()
	}

	notifier := notify.LogNotifier{}
	gateway := payment.LoggingGateway{}
	oracle := geo.NewHaversineOracle(cfg.AgentSpeedKmh)

	availability := store.NewAvailabilityService(storeRepo)
	storeSvc := store.NewService(storeRepo, notifier)
	coverageIdx := coverage.NewIndex(coverageRepo, storeDirectory{repo: storeRepo}, availability)

	ledger := inventory.NewLedger(inventoryRepo, notifier, cfg.ReservationTTL)
	sweeper := inventory.NewSweeper(inventoryRepo, cfg.SweepInterval)

	resolver := catalog.NewResolver(catalogRepo, coverageIdx, ledger, catalog.ResolverConfig{
		ShowOutOfStock: cfg.ShowOutOfStock,
		Moderation:     cfg.ModerateCatalog,
	})

	slotSvc := slot.NewService(slotRepo)
	engine := delivery.NewEngine(deliveryRepo, oracle, notifier, delivery.Strategy(cfg.AssignmentStrategy))
	orderSvc := order.NewService(orderRepo, ledger, slotSvc, engine, gateway, notifier)
	tracking := delivery.NewTrackingStream(deliveryRepo, oracle, orderSvc)
	cartSvc := cart.NewService(cartRepo, resolver, ledger, coverageIdx, orderSvc, gateway)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	handler.NewStoreHandler(storeSvc, availability).RegisterRoutes(r)
	handler.NewCoverageHandler(coverageIdx).RegisterRoutes(r)
	handler.NewCatalogHandler(resolver).RegisterRoutes(r)
	handler.NewInventoryHandler(ledger).RegisterRoutes(r)
	handler.NewCartHandler(cartSvc).RegisterRoutes(r)
	handler.NewSlotHandler(slotSvc).RegisterRoutes(r)
	handler.NewOrderHandler(orderSvc).RegisterRoutes(r)
	handler.NewDeliveryHandler(engine, tracking, orderSvc).RegisterRoutes(r)

	return &App{Router: r, Sweeper: sweeper}
}
