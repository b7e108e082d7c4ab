// ABOUTME: Process-wide wiring shared by every chatsync command
// ABOUTME: Loads .env and config, builds the logger, credential source, metrics and REST client

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/channel"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/credential"
	"github.com/2389/coven-chat/internal/journal"
	"github.com/2389/coven-chat/internal/logging"
	"github.com/2389/coven-chat/internal/metrics"
)

const tokenPollInterval = 5 * time.Second

type app struct {
	configPath string
	as         string
	verbose    bool

	cfg       *config.Config
	logger    *slog.Logger
	logClose  func() error
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	creds     *credential.Source
	client    *api.Client
	tokenPath string
}

func (a *app) setup() error {
	// A missing .env is the common case.
	_ = godotenv.Load()

	path := a.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	logger, logClose, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	a.logger, a.logClose = logger, logClose
	slog.SetDefault(logger)

	a.tokenPath = cfg.Auth.TokenFile
	if a.tokenPath == "" {
		a.tokenPath = credential.DefaultTokenPath()
	}
	token, err := credential.Resolve(cfg.Auth.Token, a.tokenPath)
	if err != nil {
		return err
	}
	a.creds = credential.NewSource(token, logger)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	a.client, err = api.New(api.Options{
		BaseURL:   cfg.Server.APIURL,
		Tokens:    a.creds,
		RateLimit: cfg.Server.RateLimit,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	return err
}

func (a *app) close() {
	if a.logClose != nil {
		if err := a.logClose(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}
}

// localUser is the username of the signed-in user: --as, else the token's
// username claim.
func (a *app) localUser() (string, error) {
	if a.as != "" {
		return a.as, nil
	}
	claims, err := a.creds.Claims()
	if err != nil {
		return "", errors.New("cannot tell who you are from the session token; pass --as <username>")
	}
	if claims.Username == "" {
		return "", errors.New("session token has no username claim; pass --as <username>")
	}
	return claims.Username, nil
}

// requireCredential fails early with a hint when no usable token is present.
func (a *app) requireCredential() error {
	if a.creds.Token() != "" {
		return nil
	}
	if claims, err := a.creds.Claims(); err == nil && claims.Expired(time.Now()) {
		return fmt.Errorf("%w: run 'chatsync token set'", credential.ErrExpired)
	}
	return fmt.Errorf("%w: run 'chatsync token set' or export %s", api.ErrNoCredential, credential.EnvToken)
}

// checkAuth clears the session when the server rejected the credential, so
// the event channel is released with it.
func (a *app) checkAuth(err error) error {
	if api.IsUnauthorized(err) {
		a.logger.Warn("server rejected session token, clearing it")
		a.creds.Clear()
	}
	return err
}

func (a *app) newManager() (*channel.Manager, error) {
	return channel.NewManager(a.creds, channel.Options{
		URL:              a.cfg.Server.SocketURL,
		Namespace:        a.cfg.Server.Namespace,
		ReconnectMin:     a.cfg.Channel.ReconnectMin,
		ReconnectMax:     a.cfg.Channel.ReconnectMax,
		HandshakeTimeout: a.cfg.Channel.HandshakeTimeout,
		DedupeWindow:     a.cfg.Channel.DedupeWindow,
		Metrics:          a.metrics,
		Logger:           a.logger,
	})
}

// bindSession keeps the manager in step with the credential: a new token
// refreshes the live handle in place, a cleared one ends the session.
// Changes are applied on a separate goroutine because a clear may come from
// inside a channel handler, where Release would wait on itself. Only the
// latest change is applied.
func (a *app) bindSession(ctx context.Context, m *channel.Manager) {
	var (
		mu     sync.Mutex
		latest string
	)
	kick := make(chan struct{}, 1)
	a.creds.OnChange(func(token string) {
		mu.Lock()
		latest = token
		mu.Unlock()
		select {
		case kick <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
			}
			mu.Lock()
			token := latest
			mu.Unlock()

			if token == "" {
				m.Release()
				continue
			}
			if _, err := m.Acquire(); err != nil {
				a.logger.Warn("failed to refresh event channel", "error", err)
			}
		}
	}()
}

// pollTokenFile picks up tokens written by 'chatsync token set' from another
// terminal while a long-running command is active.
func (a *app) pollTokenFile(ctx context.Context) {
	if os.Getenv(credential.EnvToken) != "" || a.cfg.Auth.Token != "" {
		return
	}
	ticker := time.NewTicker(tokenPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			token, err := credential.Resolve("", a.tokenPath)
			if err != nil {
				a.logger.Debug("token file unreadable", "error", err)
				continue
			}
			a.creds.Set(token)
		}
	}
}

// openJournal opens the event journal when enabled. The returned close is
// always safe to call.
func (a *app) openJournal() (*journal.SQLiteJournal, func(), error) {
	if !a.cfg.Journal.Enabled {
		return nil, func() {}, nil
	}
	j, err := journal.Open(a.cfg.Journal.Path, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.Journal.Retention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := j.Prune(ctx, time.Now().Add(-a.cfg.Journal.Retention))
		cancel()
		if err != nil {
			a.logger.Warn("journal prune failed", "error", err)
		}
	}
	return j, func() {
		if err := j.Close(); err != nil {
			a.logger.Warn("failed to close journal", "error", err)
		}
	}, nil
}

// serveMetrics exposes the registry on cfg.Metrics.Addr until ctx ends.
func (a *app) serveMetrics(ctx context.Context) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		a.logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
