package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/exportguard/internal/adapter/limiter"
	"github.com/berfenger/exportguard/internal/core/domain"
	"github.com/berfenger/exportguard/internal/core/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const MASTER_REQUEST_TIMEOUT = 5 * time.Second

type LimitsResponse struct {
	Directives []domain.ControlDirective `json:"directives"`
	Reconciled domain.ReconciledLimit    `json:"reconciled"`
}

type ControlStateResponse struct {
	ApplyControl  bool                   `json:"applyControl"`
	Ticks         uint64                 `json:"ticks"`
	LastTick      *time.Time             `json:"lastTick,omitempty"`
	Limit         domain.ReconciledLimit `json:"limit"`
	Configuration string                 `json:"configuration,omitempty"`
	Record        *domain.ControlRecord  `json:"record,omitempty"`
}

type ApplyControlRequest struct {
	Enable *bool `json:"enable"`
}

type ApplyControlResponse struct {
	Enable  bool `json:"enable"`
	Changed bool `json:"changed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	e.GET("/limits", s.LimitsHandler)
	e.GET("/limits/schedule", s.GetScheduleHandler)
	e.PUT("/limits/schedule", s.PutScheduleHandler)
	e.DELETE("/limits/schedule", s.DeleteScheduleHandler)

	e.GET("/control", s.ControlStateHandler)
	e.PUT("/control/apply", s.ApplyControlHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// LimitsHandler shows every source snapshot and what they reconcile to now.
func (s *Server) LimitsHandler(c echo.Context) error {
	directives := s.limits.Directives()
	reconciled, err := service.DefaultLimitReconciler{}.Reconcile(directives)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, LimitsResponse{Directives: directives, Reconciled: reconciled})
}

func (s *Server) GetScheduleHandler(c echo.Context) error {
	schedule := s.limits.Schedule()
	if schedule == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "schedule limits are disabled"})
	}
	limit := schedule.Limit()
	if limit == nil {
		return c.JSON(http.StatusOK, struct{}{})
	}
	return c.JSON(http.StatusOK, limit)
}

func (s *Server) PutScheduleHandler(c echo.Context) error {
	schedule := s.limits.Schedule()
	if schedule == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "schedule limits are disabled"})
	}
	var limit limiter.ScheduleLimit
	if err := c.Bind(&limit); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed schedule limit"})
	}
	if err := schedule.Set(limit); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, limit)
}

func (s *Server) DeleteScheduleHandler(c echo.Context) error {
	schedule := s.limits.Schedule()
	if schedule == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "schedule limits are disabled"})
	}
	schedule.Clear()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ControlStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetControlStateRequest{}, MASTER_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	state, ok := res.(domain.GetControlStateResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	out := ControlStateResponse{
		ApplyControl: state.ApplyControl,
		Ticks:        state.Ticks,
		Limit:        state.Limit,
		Record:       state.Record,
	}
	if !state.LastTick.IsZero() {
		out.LastTick = &state.LastTick
	}
	if state.Configuration != nil {
		out.Configuration = state.Configuration.String()
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) ApplyControlHandler(c echo.Context) error {
	var req ApplyControlRequest
	if err := c.Bind(&req); err != nil || req.Enable == nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "body must be {\"enable\": true|false}"})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetApplyControlRequest{Enable: *req.Enable}, MASTER_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	resp, ok := res.(domain.SetApplyControlResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	return c.JSON(http.StatusOK, ApplyControlResponse{Enable: *req.Enable, Changed: resp.Changed})
}
