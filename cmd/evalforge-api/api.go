// Package main provides the Evalforge API server implementation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/evalforge/evalforge/pkg/aggregate"
	"github.com/evalforge/evalforge/pkg/cmd"
	"github.com/evalforge/evalforge/pkg/definition"
	"github.com/evalforge/evalforge/pkg/eventbus"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/orchestrator"
	"github.com/evalforge/evalforge/pkg/otelhelper"
	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/evalforge/evalforge/pkg/plan"
	"github.com/evalforge/evalforge/pkg/queue"
	"github.com/evalforge/evalforge/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DispatchModeLocal runs agents in-process through the execution service.
	DispatchModeLocal = "local"

	// DispatchModeQueue appends task invocations to the Redis stream for
	// separate worker processes and collects their outcomes from the event
	// bus.
	DispatchModeQueue = "queue"
)

type APIConfig struct {
	WorkflowsPath  string
	AgentEndpoints string
	MaxActive      int
	DispatchMode   string
	RedisAddr      string
}

type API struct {
	logger          *slog.Logger
	persistence     persistence.Persistence
	definitions     *definition.Store
	orchestrator    *orchestrator.Orchestrator
	stopJanitor     func()
	closeDispatcher func() error
	validate        *validator.Validate
}

func NewAPI(
	ctx context.Context,
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	config APIConfig,
) (*API, error) {
	definitions := definition.NewStore(logger)
	if err := definitions.LoadDir(config.WorkflowsPath); err != nil {
		return nil, err
	}

	registry, err := cmd.NewAgentRegistry(logger, config.AgentEndpoints)
	if err != nil {
		return nil, err
	}

	var tracer trace.Tracer

	tracer, err = otelhelper.NewTracer(ctx, "evalforge-api")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)

		tracer = nil
	}

	executor := execution.NewService(registry, cmd.NewClassifier(logger), logger, tracer)
	aggregator := aggregate.NewAggregator(logger)
	planner := plan.NewBuilder(logger, plan.RelaxOptionalEdges{})

	orchestratorConfig := orchestrator.DefaultConfig()
	orchestratorConfig.MaxActiveExecutions = config.MaxActive

	orch := orchestrator.New(
		definitions,
		planner,
		executor,
		aggregator,
		store,
		eventBus,
		logger,
		tracer,
		orchestratorConfig,
	)

	closeDispatcher := func() error { return nil }

	switch config.DispatchMode {
	case "", DispatchModeLocal:
	case DispatchModeQueue:
		dispatcher, err := queue.NewDispatcher(ctx, queue.Config{Addr: config.RedisAddr}, logger)
		if err != nil {
			return nil, err
		}

		orch.UseRemoteDispatch(dispatcher)
		orch.SubscribeOutcomes(eventBus)

		if err := eventBus.Subscribe(ctx); err != nil {
			_ = dispatcher.Close()

			return nil, err
		}

		closeDispatcher = dispatcher.Close
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q, want %s or %s", config.DispatchMode, DispatchModeLocal, DispatchModeQueue)
	}

	stopJanitor, err := orch.StartJanitor()
	if err != nil {
		return nil, err
	}

	return &API{
		logger:          logger,
		persistence:     store,
		definitions:     definitions,
		orchestrator:    orch,
		stopJanitor:     stopJanitor,
		closeDispatcher: closeDispatcher,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.definitions, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Evalforge API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	defer a.stopJanitor()
	defer func() {
		if err := a.closeDispatcher(); err != nil {
			a.logger.Error("Failed to close queue dispatcher", "error", err)
		}
	}()

	return a.App().Listen(":" + strconv.Itoa(port))
}
