package router

import (
	divsvc "captable-backend/internal/application/dividends"
	emailsvc "captable-backend/internal/application/emails"
	grantsvc "captable-backend/internal/application/grants"
	ledgersvc "captable-backend/internal/application/ledger"
	tosvc "captable-backend/internal/application/tenderoffers"
	vestsvc "captable-backend/internal/application/vesting"
	"captable-backend/internal/config"
	"captable-backend/internal/infrastructure/database"
	divhandler "captable-backend/internal/interfaces/handlers/dividends"
	granthandler "captable-backend/internal/interfaces/handlers/grants"
	healthhandler "captable-backend/internal/interfaces/handlers/health"
	invoicehandler "captable-backend/internal/interfaces/handlers/invoices"
	tohandler "captable-backend/internal/interfaces/handlers/tenderoffers"
	vesthandler "captable-backend/internal/interfaces/handlers/vesting"
	"captable-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp builds the Fiber app with all global middleware and route
// registration, opens the database and the optional Redis client.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opts)
		app.Use(middleware.HealthMarker(rdb))
	}

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		opened, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(opened); err != nil {
			return nil, nil, nil, err
		}
		db = opened
	}

	var notifier emailsvc.Notifier
	if cfg.SendinblueAPIKey != "" {
		notifier = &emailsvc.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
	}

	ledger := &ledgersvc.Service{DB: db, Notify: notifier}
	grants := &grantsvc.Service{DB: db, Notify: notifier}
	reconciler := &grantsvc.Reconciler{DB: db}
	runner := &vestsvc.Runner{DB: db, Ledger: ledger}
	tenderOffers := &tosvc.Service{DB: db}
	dividends := &divsvc.Service{DB: db}

	healthH := &healthhandler.Handlers{Rdb: rdb, DB: &gormDBPinger{db: db}, AdminAPIKey: cfg.AdminAPIKey}
	grantH := &granthandler.Handlers{Grants: grants, Ledger: ledger, Reconciler: reconciler}
	vestH := &vesthandler.Handlers{Runner: runner}
	invoiceH := &invoicehandler.Handlers{DB: db, Ledger: ledger}
	toH := &tohandler.Handlers{Service: tenderOffers}
	divH := &divhandler.Handlers{Service: dividends}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/health/json", healthH.JSON)
	app.Post("/health/reset", healthH.Reset)

	api := app.Group("/api/v1", middleware.AdminKey(cfg.AdminAPIKey, cfg.Env == "production"))
	api.Post("/grants", grantH.Issue)
	api.Post("/grants/:id/cancel", grantH.Cancel)
	api.Post("/grants/:id/exercise", grantH.Exercise)
	api.Post("/grants/:id/adjust", grantH.Adjust)
	api.Post("/grants/:id/forfeit", grantH.Forfeit)
	api.Get("/reconciliation", grantH.Reconcile)
	api.Post("/vesting/run", vestH.Run)
	api.Post("/invoices/:id/paid", invoiceH.Paid)
	api.Post("/tender-offers/:id/settle", toH.Settle)
	api.Post("/dividends/calculate", divH.Calculate)

	return app, db, rdb, nil
}
