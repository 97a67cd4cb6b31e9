// Package main provides the Atomaton server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/atomaton/atomaton/pkg/crypto"
	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/atomaton/atomaton/pkg/queue"
	"github.com/atomaton/atomaton/pkg/services/retention"
	"github.com/atomaton/atomaton/pkg/sources/mailbox"
	"github.com/atomaton/atomaton/pkg/sources/webhook"
	"github.com/atomaton/atomaton/pkg/web"
	"github.com/atomaton/atomaton/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type Server struct {
	logger    *slog.Logger
	persist   persistence.Persistence
	queue     queue.ExecutionQueue
	executor  *workflow.Executor
	mailboxes *mailbox.Manager
	sweeper   *retention.Sweeper
	validate  *validator.Validate
}

func NewServer(
	logger *slog.Logger,
	persist persistence.Persistence,
	executionQueue queue.ExecutionQueue,
	cipher *crypto.Cipher,
	retentionDays int,
	maxLogsPerWorkflow int,
) *Server {
	server := &Server{
		logger:   logger,
		persist:  persist,
		queue:    executionQueue,
		executor: workflow.NewExecutor(persist, logger),
		sweeper:  retention.NewSweeper(persist, logger, retentionDays, maxLogsPerWorkflow),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	// Mailbox polling needs the master key to decrypt account credentials.
	if cipher != nil {
		server.mailboxes = mailbox.NewManager(persist, executionQueue, mailbox.NewIMAPDialer(), cipher, logger)
	}

	return server
}

func (s *Server) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Atomaton")
	})

	web.NewAPIHandlers(s.persist, s.executor, s.validate).Register(app)
	webhook.NewHandler(s.persist, s.queue, s.logger).Register(app)

	return app
}

func (s *Server) Start(ctx context.Context, port int) error {
	s.queue.SetProcessor(s.executor.Execute)

	err := s.sweeper.Start(ctx)
	if err != nil {
		return err
	}

	s.startMailboxPollers(ctx)

	return s.App().Listen(":" + strconv.Itoa(port))
}

// startMailboxPollers starts one poller per mailbox trigger found at boot.
// Failures are logged and skipped so one bad trigger cannot block startup.
func (s *Server) startMailboxPollers(ctx context.Context) {
	triggers, err := s.persist.TriggerRepository().TriggersByType(ctx, models.TriggerTypeMailboxPolling)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list mailbox triggers", "error", err)

		return
	}

	for _, trigger := range triggers {
		accountID, _ := trigger.Config["accountId"].(string)
		if accountID == "" {
			s.logger.WarnContext(ctx, "Mailbox trigger has no accountId, skipping",
				"trigger_id", trigger.ID)

			continue
		}

		if s.mailboxes == nil {
			s.logger.WarnContext(ctx, "Mailbox trigger present but polling is disabled",
				"trigger_id", trigger.ID, "account_id", accountID)

			continue
		}

		err := s.mailboxes.Start(ctx, accountID, intervalMinutes(trigger))
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to start mailbox poller",
				"account_id", accountID, "error", err)
		}
	}
}

func intervalMinutes(trigger *models.Trigger) int {
	switch v := trigger.Config["intervalMinutes"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	s.sweeper.Stop()

	if s.mailboxes != nil {
		s.mailboxes.StopAll()
	}

	err := s.queue.Close()
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to close execution queue", "error", err)
	}
}
