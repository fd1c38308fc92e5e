package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"casetrack/internal/api"
	"casetrack/internal/backend"
	"casetrack/internal/config"
	"casetrack/internal/logging"
	"casetrack/internal/submit"
	"casetrack/internal/tasks"
)

const notificationPageLimit = 100

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	app    *fiber.App

	listener net.Listener
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.app = fiber.New(fiber.Config{
		AppName:               "casetrackd",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          srv.handleError,
	})
	srv.app.Use(recover.New())
	srv.app.Use(srv.requestLogger)

	group := srv.app.Group("/api", authMiddleware(strings.TrimSpace(cfg.Paths.APIToken)))
	group.Get("/status", srv.handleStatus)
	group.Get("/tasks", srv.handleListTasks)
	group.Post("/tasks", srv.handleTrackTask)
	group.Post("/tasks/clear", srv.handleClearTasks)
	group.Get("/tasks/:id", srv.handleGetTask)
	group.Delete("/tasks/:id", srv.handleRemoveTask)
	group.Post("/tasks/:id/retry", srv.handleRetryTask)
	group.Post("/submit/:category", srv.handleSubmit)
	group.Get("/notifications", srv.handleNotifications)
	group.Post("/notifications/test", srv.handleTestNotification)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.app.Listener(listener); err != nil {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.listener == nil {
		return
	}
	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		s.logger.Warn("api server shutdown", logging.Error(err))
	}
	s.listener = nil
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requestLogger tags the request with an id and logs it once finished.
func (s *apiServer) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	requestID := strings.TrimSpace(c.Get("X-Request-ID"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("X-Request-ID", requestID)
	c.SetUserContext(logging.WithRequestID(c.UserContext(), requestID))

	err := c.Next()
	if err != nil {
		if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	s.logger.Debug("request",
		logging.String(logging.FieldCorrelationID, requestID),
		logging.String("method", c.Method()),
		logging.String("path", c.Path()),
		logging.Int("status", c.Response().StatusCode()),
		logging.Duration("latency", time.Since(start)),
	)
	return nil
}

func (s *apiServer) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, tasks.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, tasks.ErrNotRetryable):
		code = fiber.StatusConflict
	case errors.Is(err, submit.ErrInvalidRequest):
		code = fiber.StatusBadRequest
	case errors.Is(err, backend.ErrSubmission):
		code = fiber.StatusBadGateway
	}
	if code >= fiber.StatusInternalServerError && code != fiber.StatusBadGateway {
		logging.ErrorWithContext(s.logger, "api request failed", "api_error",
			logging.String("path", c.Path()),
			logging.Error(err),
		)
	}
	return c.Status(code).JSON(api.ErrorResponse{Error: err.Error()})
}

func (s *apiServer) handleStatus(c *fiber.Ctx) error {
	withChecks := c.QueryBool("checks", true)
	status := s.daemon.Status(c.UserContext(), withChecks)
	payload := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		SessionID:     status.SessionID,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		LogPath:       status.LogPath,
		BackendURL:    status.BackendURL,
		ActivePollers: status.ActivePollers,
		Counts:        api.MergeStats(status.Counts),
		Sinks:         status.Sinks,
		Checks:        api.FromChecks(status.Checks),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.Format(time.RFC3339)
	}
	return c.JSON(payload)
}

func (s *apiServer) handleListTasks(c *fiber.Ctx) error {
	var states []tasks.State
	for _, raw := range c.Context().QueryArgs().PeekMulti("state") {
		for _, value := range strings.Split(string(raw), ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			state, ok := tasks.ParseState(value)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown state %q", value))
			}
			states = append(states, state)
		}
	}
	tr := s.daemon.deps.Tracker
	return c.JSON(api.NewTaskList(tr.List(states...), tr.Stats()))
}

func (s *apiServer) handleTrackTask(c *fiber.Ctx) error {
	var req api.TrackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "task id is required")
	}
	job, added, err := s.daemon.deps.Tracker.Add(c.UserContext(), req.ID, req.Context.ToContext())
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if added {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(api.TrackResponse{Task: api.FromJob(job), Added: added})
}

func (s *apiServer) handleGetTask(c *fiber.Ctx) error {
	job, err := s.daemon.deps.Tracker.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.TaskResponse{Task: api.FromJob(job)})
}

func (s *apiServer) handleRemoveTask(c *fiber.Ctx) error {
	id := c.Params("id")
	removed, err := s.daemon.deps.Tracker.Remove(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	}
	return c.JSON(api.RemoveResponse{Removed: true})
}

func (s *apiServer) handleRetryTask(c *fiber.Ctx) error {
	job, err := s.daemon.deps.Tracker.Retry(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.TaskResponse{Task: api.FromJob(job)})
}

func (s *apiServer) handleClearTasks(c *fiber.Ctx) error {
	var (
		removed int
		err     error
	)
	if c.QueryBool("completed", false) {
		removed, err = s.daemon.deps.Tracker.ClearCompleted(c.UserContext())
	} else {
		removed, err = s.daemon.deps.Tracker.ClearAll(c.UserContext())
	}
	if err != nil {
		return err
	}
	return c.JSON(api.ClearResponse{Removed: removed})
}

func (s *apiServer) handleSubmit(c *fiber.Ctx) error {
	category, err := submit.ParseCategory(c.Params("category"))
	if err != nil {
		return err
	}
	var req api.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	ids, err := s.daemon.deps.Submit.Submit(c.UserContext(), category, req.CaseID, req.EvidenceIDs)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(api.SubmitResponse{Category: string(category), TaskIDs: ids})
}

func (s *apiServer) handleNotifications(c *fiber.Ctx) error {
	since, err := strconv.ParseInt(c.Query("since", "0"), 10, 64)
	if err != nil || since < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "since must be a non-negative integer")
	}
	feed := s.daemon.deps.Feed
	return c.JSON(api.NotificationsResponse{
		Items: feed.Since(since, notificationPageLimit),
		Next:  feed.LastSeq(),
	})
}

func (s *apiServer) handleTestNotification(c *fiber.Ctx) error {
	sent, message, err := s.daemon.TestNotification(c.UserContext())
	resp := api.TestNotificationResponse{Sent: sent, Message: message}
	if s.daemon.deps.Hub != nil {
		resp.Sinks = s.daemon.deps.Hub.Sinks()
	}
	if err != nil {
		resp.Message = fmt.Sprintf("%s: %v", message, err)
		resp.Error = resp.Message
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}
	return c.JSON(resp)
}
