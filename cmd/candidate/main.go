package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/controller"
	"github.com/stemsi/assessment-client/internal/database"
	"github.com/stemsi/assessment-client/internal/handler"
	"github.com/stemsi/assessment-client/internal/logger"
	"github.com/stemsi/assessment-client/internal/model"
	"github.com/stemsi/assessment-client/internal/router"
	"github.com/stemsi/assessment-client/internal/store"
	"github.com/stemsi/assessment-client/internal/transport"
	"github.com/stemsi/assessment-client/internal/validator"
	"golang.org/x/term"
)

func main() {
	var (
		testID        int
		applicationID string
	)
	flag.IntVar(&testID, "test", 0, "Test ID to take")
	flag.StringVar(&applicationID, "application", "", "Application ID (overrides APPLICATION_ID)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	if applicationID == "" {
		applicationID = cfg.ApplicationID
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("assessment_url", cfg.AssessmentURL).
		Int("test_id", testID).
		Str("log_level", cfg.LogLevel).
		Msg("Starting assessment client")

	if testID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: candidate -test <id> [-application <id>]")
		os.Exit(2)
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Candidate Token ───────────────────────────────────────────────
	token, err := candidateToken(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Candidate token required")
	}
	claims, err := transport.InspectToken(token, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Candidate token rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Snapshot Sinks ────────────────────────────────────────────────
	mem := store.NewMemorySink()
	screen := newTerminal(os.Stdout)
	sinks := []store.Sink{mem, screen}

	var (
		redisSink *store.RedisSink
		events    *handler.EventsHandler
	)
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, snapshots stay local")
		} else {
			defer rdb.Close()
			redisSink = store.NewRedisSink(rdb, cfg.SnapshotTTL, log)
			events = handler.NewEventsHandler(rdb, log)
			sinks = append(sinks, redisSink)
		}
	}

	projector := store.NewProjector(log, sinks...)
	projectorCtx, projectorCancel := context.WithCancel(context.Background())
	go projector.Start(projectorCtx)

	// ─── Controller ────────────────────────────────────────────────────
	dialer := transport.NewWSDialer(transport.WSOptions{
		BaseURL:      cfg.AssessmentURL,
		Token:        token,
		WriteTimeout: cfg.WSWriteTimeout,
		ReadTimeout:  cfg.StaleAfter,
	}, log)

	ctrl := controller.New(dialer, projector, log, controller.Options{
		Policy: controller.ReconnectPolicy{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			BaseDelay:   cfg.ReconnectBaseDelay,
			MaxDelay:    cfg.ReconnectMaxDelay,
		},
		HeartbeatInterval: cfg.HeartbeatInterval,
		StaleAfter:        cfg.StaleAfter,
		UserID:            claims.UserID,
	})

	// ─── Local Status API ──────────────────────────────────────────────
	var srv *http.Server
	if cfg.StatusPort != "" {
		var loader handler.SnapshotLoader
		if redisSink != nil {
			loader = redisSink
		}
		handlers := &router.Handlers{
			Assessment: handler.NewAssessmentHandler(ctrl, mem, loader, log),
			Events:     events,
		}
		srv = &http.Server{
			Addr:    "127.0.0.1:" + cfg.StatusPort,
			Handler: router.SetupRouter(handlers, cfg, token),
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("Status API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status API error")
			}
		}()
	}

	// ─── Shutdown ──────────────────────────────────────────────────────
	shutdown := func() {
		ctrl.Close()

		if srv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Status API shutdown error")
			}
			shutdownCancel()
		}

		// Let the final snapshot reach the sinks.
		projectorCancel()
		select {
		case <-projector.Done():
		case <-time.After(5 * time.Second):
			log.Warn().Msg("Projector flush timed out")
		}
		log.Info().Msg("Shutdown complete")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ─── Connect and Start ─────────────────────────────────────────────
	if err := ctrl.Connect(ctx, testID); err != nil {
		log.Error().Err(err).Msg("Connect failed")
		shutdown()
		os.Exit(1)
	}
	if !waitFor(ctx, ctrl, quit, 30*time.Second, func(s model.Snapshot) bool {
		return s.ConnectionStatus == model.StatusConnected || s.ConnectionStatus == model.StatusError
	}) || ctrl.Snapshot().ConnectionStatus != model.StatusConnected {
		log.Error().Msg("Handshake did not complete")
		shutdown()
		os.Exit(1)
	}
	if err := ctrl.StartAssessment(applicationID); err != nil {
		log.Error().Err(err).Msg("Start failed")
		shutdown()
		os.Exit(1)
	}

	// ─── Terminal Loop ─────────────────────────────────────────────────
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
			shutdown()
			return

		case line, ok := <-lines:
			if !ok {
				shutdown()
				return
			}
			if quitRequested := handleInput(ctrl, screen, line, log); quitRequested {
				shutdown()
				return
			}

		case <-ticker.C:
			snap := ctrl.Snapshot()
			if snap.AssessmentCompleted || fatal(snap) {
				shutdown()
				if !snap.AssessmentCompleted {
					os.Exit(1)
				}
				return
			}
		}
	}
}

// fatal reports whether the session failed in a way only a restart fixes.
func fatal(s model.Snapshot) bool {
	if s.ConnectionStatus != model.StatusError || len(s.ErrorLogs) == 0 {
		return false
	}
	return !s.ErrorLogs[len(s.ErrorLogs)-1].Recoverable
}

// candidateToken returns the configured token or prompts for it without echo.
func candidateToken(cfg *config.Config) (string, error) {
	if cfg.CandidateToken != "" {
		return cfg.CandidateToken, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("CANDIDATE_TOKEN is not set and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Candidate token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// waitFor polls the controller until cond holds, the timeout passes, or a
// signal arrives. It reports whether cond held.
func waitFor(ctx context.Context, ctrl *controller.Controller, quit <-chan os.Signal, timeout time.Duration, cond func(model.Snapshot) bool) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cond(ctrl.Snapshot()) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-quit:
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

// handleInput runs one terminal command. It reports whether the user quit.
func handleInput(ctrl *controller.Controller, screen *terminal, line string, log zerolog.Logger) bool {
	switch strings.ToLower(line) {
	case "":
		return false
	case "q", "quit":
		return true
	case "c", "complete":
		if err := ctrl.CompleteAssessment(); err != nil {
			screen.notice("Cannot complete: %v", err)
		}
		return false
	case "i", "info":
		if err := ctrl.RequestTestInfo(); err != nil {
			screen.notice("Cannot request test info: %v", err)
		}
		return false
	case "x", "clear":
		ctrl.ClearError()
		return false
	case "?", "h", "help":
		screen.help()
		return false
	}

	snap := ctrl.Snapshot()
	if snap.CurrentQuestion == nil {
		screen.notice("No question to answer yet.")
		return false
	}

	optionID, ok := screen.resolveOption(snap.CurrentQuestion, line)
	if !ok {
		screen.notice("Unknown choice %q. Type ? for help.", line)
		return false
	}

	if err := ctrl.SubmitAnswer(snap.CurrentQuestion.QuestionID, optionID); err != nil {
		log.Debug().Err(err).Msg("Submit rejected")
		screen.notice("Answer not sent: %v", err)
	}
	return false
}
