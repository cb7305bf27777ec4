package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/hive-agent/internal/a2a"
	hiveagent "github.com/zhengjr9/hive-agent/internal/agent"
	"github.com/zhengjr9/hive-agent/internal/config"
	apierrors "github.com/zhengjr9/hive-agent/internal/errors"
	"github.com/zhengjr9/hive-agent/internal/hive"
	"github.com/zhengjr9/hive-agent/internal/httputil"
	"github.com/zhengjr9/hive-agent/internal/llm"
	"github.com/zhengjr9/hive-agent/internal/persona"
	"github.com/zhengjr9/hive-agent/internal/status"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		slog.Error("failed to load persona", "error", err)
		os.Exit(1)
	}

	slog.Info("starting hive-agent",
		"agent_id", cfg.AgentID,
		"agent_name", cfg.AgentName,
		"llm_base_url", cfg.LLMBaseURL,
		"hive_base_url", cfg.HiveBaseURL,
		"listen", cfg.ListenAddr,
		"a2a_enabled", cfg.A2AEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := llm.New(llm.Config{
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		FastModel:   cfg.LLMFastModel,
		Credentials: cfg.Credentials,
		Timeout:     cfg.LLMTimeout,
		ProxyURL:    cfg.LLMProxyURL,
	})
	if client.PoolSize() == 0 {
		slog.Warn("no completion credentials configured; every completion will fail", "error", apierrors.ErrNoCredentials)
	} else {
		slog.Info("credential pool ready", "credentials", client.PoolSize())
	}
	hiveClient := hive.New(cfg.HiveBaseURL, cfg.AgentID, cfg.AgentName, cfg.HiveTimeout)

	ag := hiveagent.New(hiveagent.Config{
		AgentID:   cfg.AgentID,
		AgentName: cfg.AgentName,
		Persona:   p,
		Intervals: hiveagent.Intervals{
			Heartbeat: cfg.HeartbeatInterval,
			Research:  cfg.ResearchInterval,
			Social:    cfg.SocialInterval,
			Validate:  cfg.ValidateInterval,
		},
		ChatHeartbeat: cfg.HeartbeatChat,
	}, client, hiveClient)

	serverErr := make(chan error, 2)

	var srv *status.Server
	if cfg.ListenAddr != "" {
		srv = status.New(cfg, client, ag.Running)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	if cfg.A2AEnabled {
		a2aAgent, err := a2a.New(a2a.AgentConfig{
			Name:         cfg.AgentName,
			Description:  "Research agent on the P2PCLAW hive. Interests: " + p.Interests,
			Completer:    client,
			SystemPrompt: p.SystemPrompt,
		})
		if err != nil {
			slog.Error("failed to create A2A agent", "error", err)
			os.Exit(1)
		}

		slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)

		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &tokenGateApp{BasicApp: inner, token: cfg.ServerToken}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(a2aAgent),
			}); err != nil && ctx.Err() == nil {
				serverErr <- err
			}
		}()
	}

	runDone := make(chan error, 1)
	go func() { runDone <- ag.RunFor(ctx, cfg.RunDuration, cfg.ShutdownGrace) }()

	exitCode := 0
	select {
	case err := <-runDone:
		if err != nil {
			slog.Error("agent stopped with error", "error", err)
			exitCode = 1
		}
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		exitCode = 1
	}

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("status server shutdown error", "error", err)
		}
		cancel()
	}

	slog.Info("hive-agent stopped")
	os.Exit(exitCode)
}

// tokenGateApp wraps a BasicApp and installs a Gorilla mux middleware that
// requires "Authorization: Bearer <token>" on every A2A request. An empty
// token leaves the server open.
type tokenGateApp struct {
	apps.BasicApp
	token string
}

// Run overrides the embedded Run so that apps.Run receives w as the app
// argument; otherwise SetupRouters on the inner app runs and the middleware
// is never registered.
func (w *tokenGateApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *tokenGateApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(w.gate)
	return nil
}

func (w *tokenGateApp) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !httputil.TokenMatches(httputil.BearerToken(r), w.token) {
			apierrors.WriteJSONError(rw, http.StatusUnauthorized, apierrors.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(rw, r)
	})
}
