// Package main provides the Caseflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/executor"
	"github.com/caseflow/caseflow/pkg/store"
	"github.com/caseflow/caseflow/pkg/web"
)

type API struct {
	logger   *slog.Logger
	catalog  *catalog.Catalog
	executor *executor.Executor
	store    store.ExecutionStore
	breakers *breaker.Registry
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	cat *catalog.Catalog,
	exec *executor.Executor,
	executionStore store.ExecutionStore,
	breakers *breaker.Registry,
) *API {
	return &API{
		logger:   logger,
		catalog:  cat,
		executor: exec,
		store:    executionStore,
		breakers: breakers,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.logger, a.catalog, a.executor, a.store, a.breakers, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Caseflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.RegisterWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/executions", handlers.StartExecution)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/events", handlers.GetExecutionEvents)
	e.Post("/:id/resume", handlers.ResumeExecution)

	b := app.Group("/breakers")
	b.Get("/", handlers.GetBreakers)
	b.Get("/:key", handlers.GetBreaker)
	b.Post("/:key/reset", handlers.ResetBreaker)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
