package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/exportguard/internal/adapter/limiter"
	"github.com/berfenger/exportguard/internal/config"

	"github.com/asynkron/protoactor-go/actor"
)

// Server exposes the control loop state and the schedule limit source
// over HTTP. Every control request goes through the master actor.
type Server struct {
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	limits      *limiter.Registry
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, limits *limiter.Registry) *http.Server {
	s := &Server{
		httpLog:     cfg.HttpLog,
		rootContext: rootContext,
		masterActor: masterActor,
		limits:      limits,
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      MASTER_REQUEST_TIMEOUT + 10*time.Second,
	}
}
