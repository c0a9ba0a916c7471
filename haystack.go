// Package haystack provides a high-level façade assembling the conversational
// assistant from configuration: the Slack transport, session store, capability
// router, executors and the completion client. Most applications interact
// with this package by:
//  1. Loading a config.Config
//  2. Creating a Haystack via New() (optionally overriding collaborators)
//  3. Calling Run() with a cancellable context
//
// The façade delegates turn processing to engine.Engine while keeping setup
// ergonomics concise. Collaborator overrides exist primarily for tests and
// for deployments that replace the stock Slack transport.
package haystack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/haystackbot/haystack/capability"
	"github.com/haystackbot/haystack/completion"
	"github.com/haystackbot/haystack/completion/anthropic"
	"github.com/haystackbot/haystack/completion/openai"
	"github.com/haystackbot/haystack/config"
	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/engine"
	"github.com/haystackbot/haystack/logging"
	"github.com/haystackbot/haystack/normalize"
	"github.com/haystackbot/haystack/router"
	"github.com/haystackbot/haystack/session"
	"github.com/haystackbot/haystack/transport/slack"
)

// Options override collaborators assembled from configuration.
type Options struct {
	// Logger replaces the logger built from the logging config.
	Logger logging.Logger

	// Backend replaces the completion backend built from the completion
	// config. Used by tests to substitute a mock.
	Backend completion.Backend

	// Store replaces the session store built from the session config.
	Store core.SessionStore
}

// Haystack is the assembled application.
type Haystack struct {
	cfg    *config.Config
	logger logging.Logger

	slack  *slack.Slack
	store  core.SessionStore
	client *completion.Client
	router *router.Router
}

// New assembles a Haystack from configuration with optional overrides.
// It fails fast on construction problems; no network calls happen here.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Haystack, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, os.Stdout)
	}

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = buildBackend(cfg.Completion)
		if err != nil {
			return nil, err
		}
	}
	client := completion.NewClient(backend, func(o *completion.ClientOptions) {
		if cfg.Completion.MaxAttempts > 0 {
			o.MaxAttempts = cfg.Completion.MaxAttempts
		}
		o.Logger = logger
	})

	store := opts.Store
	if store == nil {
		store = session.NewInMemoryStore(func(o *session.Options) {
			o.Window = cfg.Session.Window
			o.IdleTimeout = time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute
		})
	}

	transport := slack.New(slack.Config{
		BotToken:        cfg.Slack.BotToken,
		UserToken:       cfg.Slack.UserToken,
		SigningSecret:   cfg.Slack.SigningSecret,
		AllowedChannels: cfg.Slack.AllowedChannels,
	}, logger)

	workflow, err := capability.NewWorkflowRecommend(client, func(o *capability.WorkflowRecommendOptions) {
		if len(cfg.Workflow.Categories) > 0 {
			o.Categories = cfg.Workflow.Categories
		}
		o.Logger = logger
	})
	if err != nil {
		return nil, fmt.Errorf("building workflow executor: %w", err)
	}

	descriptors := []core.Descriptor{
		{Name: core.CapabilitySearchSummarize, Executor: capability.NewSearchSummarize(client, transport, func(o *capability.SearchSummarizeOptions) {
			o.Logger = logger
		})},
		{Name: core.CapabilityThreadSummarize, Executor: capability.NewThreadSummarize(client, transport, func(o *capability.ThreadSummarizeOptions) {
			o.Logger = logger
		})},
		{Name: core.CapabilityWorkflowRecommend, Executor: workflow},
		{Name: core.CapabilityGeneralChat, Executor: capability.NewGeneralChat(client, logger)},
	}

	rt := router.New(descriptors, func(o *router.Options) {
		if cfg.Router.UseClassifier {
			o.Classifier = router.NewIntentClassifier(client)
		}
		if len(cfg.Router.ResetPhrases) > 0 {
			o.ResetPhrases = cfg.Router.ResetPhrases
		}
		o.Logger = logger
	})

	return &Haystack{
		cfg:    cfg,
		logger: logger,
		slack:  transport,
		store:  store,
		client: client,
		router: rt,
	}, nil
}

// Run connects to Slack, serves the Events API endpoint and processes turns
// until ctx is cancelled. It returns after in-flight turns drain.
func (h *Haystack) Run(ctx context.Context) error {
	if err := h.slack.Connect(ctx); err != nil {
		return err
	}

	eng := engine.New(normalize.New(h.slack.BotUserID()), h.store, h.router, h.slack, func(o *engine.Options) {
		o.Logger = h.logger
	})

	mux := http.NewServeMux()
	mux.Handle("/slack/events", h.slack.EventsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: h.cfg.Slack.ListenAddr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		h.logger.Info("listening for events", "addr", h.cfg.Slack.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx, h.slack)
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-serveErr:
	case err = <-runErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		h.logger.Warn("event server shutdown", "error", shutdownErr)
	}
	eng.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildBackend selects the completion backend from configuration.
func buildBackend(cfg config.CompletionConfig) (completion.Backend, error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			if cfg.FastModel != "" {
				o.Models[completion.TierFast] = cfg.FastModel
			}
			if cfg.DeepModel != "" {
				o.Models[completion.TierDeep] = cfg.DeepModel
			}
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			if cfg.FastModel != "" {
				o.Models[completion.TierFast] = cfg.FastModel
			}
			if cfg.DeepModel != "" {
				o.Models[completion.TierDeep] = cfg.DeepModel
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
