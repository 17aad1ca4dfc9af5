package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/config"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/store"
)

// settleTimeout bounds how long one-shot commands wait for bindings.
const settleTimeout = 30 * time.Second

// closeTimeout bounds how long Close waits for outstanding cleanup.
const closeTimeout = 5 * time.Second

// session is an open store plus a running engine, with the binding
// environment in ctx.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
	ctx    context.Context
	cancel context.CancelFunc
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := newLogger(cfg, opts, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}

	logger.Debug("opening database", "path", cfg.DB.Path)
	st, err := store.Open(cfg.DB.Path, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))

	eng := engine.New(engine.WithLogger(logger))
	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("engine stopped", "error", err)
		}
	}()

	env := binding.NewEnvironment(st, cfg.EnvOptions()...)
	logger.Debug("session ready", "env", env.ID, "ops_only", cfg.OpsOnly)

	return &session{
		cfg:    cfg,
		logger: logger,
		store:  st,
		engine: eng,
		ctx:    binding.WithEnvironment(ctx, env),
		cancel: cancel,
	}, nil
}

// commandContext uses the command's context if available (for testing),
// otherwise a background one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// settle waits until every binding attempt has landed.
func (s *session) settle() error {
	ctx, cancel := context.WithTimeout(s.ctx, settleTimeout)
	defer cancel()
	if err := s.engine.Settle(ctx); err != nil {
		return WrapExitError(ExitFailure, "bindings did not settle", err)
	}
	return nil
}

// notifyInterrupt cancels the session on SIGINT or SIGTERM. The returned
// function stops listening.
func (s *session) notifyInterrupt() func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			s.cancel()
		case <-done:
		case <-s.ctx.Done():
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// Close lets posted cleanup (handle releases from deferred binding Close
// calls) run before the engine stops, then closes the store.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), closeTimeout)
	defer cancel()
	if err := s.engine.Settle(ctx); err != nil {
		s.logger.Debug("closing with unsettled bindings", "error", err)
	}
	s.engine.Stop()
	select {
	case <-s.engine.Done():
	case <-ctx.Done():
	}
	s.cancel()
	<-s.engine.Done()
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// parseValue reads a command-line value. JSON v3 prefixed text ("n:72 °F",
// "m:", "@p1") is taken as is; anything else is read as a YAML scalar so
// 72, true and null get their natural kinds.
func parseValue(arg string) (haystack.Value, error) {
	if strings.HasPrefix(arg, "@") || len(arg) >= 2 && arg[1] == ':' {
		return haystack.FromNative(arg)
	}
	var native any
	if err := yaml.Unmarshal([]byte(arg), &native); err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", arg, err)
	}
	return haystack.FromNative(native)
}

func parseRef(arg string) haystack.Ref {
	return haystack.Ref{ID: strings.TrimPrefix(arg, "@")}
}
