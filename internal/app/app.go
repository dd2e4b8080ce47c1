// Package app wires the assistant's managers together.
package app

import (
	"context"
	"fmt"

	"grant-assistant/internal/assistant/appcontext"
	"grant-assistant/internal/assistant/drafts"
	"grant-assistant/internal/assistant/generation"
	"grant-assistant/internal/assistant/parser"
	"grant-assistant/internal/assistant/session"
	"grant-assistant/internal/assistant/storage"
	"grant-assistant/internal/assistant/templates"
	"grant-assistant/internal/assistant/validator"
	"grant-assistant/internal/common/config"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/models"
	"grant-assistant/pkg/registry"
)

// App holds one instance of every manager, all sharing one storage adapter.
type App struct {
	Config    *config.Config
	Store     storage.Adapter
	Validator *validator.Validator
	Registry  *registry.TemplateRegistry
	Sessions  *session.Manager
	Context   *appcontext.Manager
	Parser    *parser.Parser
	Templates *templates.Manager
	Drafts    *drafts.Manager
	// Completer is nil when no generation service is configured.
	Completer templates.Completer

	logger      logger.Logger
	unsubscribe func()
}

// New opens the configured storage backend and builds the managers on it.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	store, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a, err := NewWithStore(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore builds the managers on an already initialized adapter.
func NewWithStore(cfg *config.Config, store storage.Adapter, log logger.Logger) (*App, error) {
	blacklist, err := loadBlacklist(cfg.Validation)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(cfg.Templates)
	if err != nil {
		return nil, err
	}

	v := validator.New(blacklist, log)
	sessions := session.NewManager(store, v, log, session.OptionsFromConfig(cfg.Session, cfg.App.Language))

	a := &App{
		Config:    cfg,
		Store:     store,
		Validator: v,
		Registry:  reg,
		Sessions:  sessions,
		Context:   appcontext.NewManager(store, v, log),
		Parser:    parser.New(sessions, log),
		Templates: templates.NewManager(reg, log),
		Drafts:    drafts.NewManager(store, log, drafts.OptionsFromConfig(cfg.Drafts)),
		logger:    logger.Component(log, "app"),
	}
	if cfg.Generation.BaseURL != "" {
		a.Completer = generation.NewClient(generation.ConfigFrom(cfg.Generation), log)
	}

	a.unsubscribe = sessions.Subscribe(a.syncContext)
	return a, nil
}

func loadBlacklist(cfg config.ValidationConfig) (*validator.Blacklist, error) {
	if cfg.BlacklistPath == "" {
		return validator.DefaultBlacklist()
	}
	bl, err := validator.LoadBlacklist(cfg.BlacklistPath)
	if err != nil {
		return nil, fmt.Errorf("load blacklist %s: %w", cfg.BlacklistPath, err)
	}
	return bl, nil
}

func loadRegistry(cfg config.TemplatesConfig) (*registry.TemplateRegistry, error) {
	if cfg.RegistryPath == "" {
		return registry.Default()
	}
	reg, err := registry.LoadFile(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load template registry %s: %w", cfg.RegistryPath, err)
	}
	return reg, nil
}

// syncContext mirrors every session change into the application context.
func (a *App) syncContext(s models.Session) {
	if _, err := a.Context.SyncFromSession(context.Background(), s.Context); err != nil {
		a.logger.Warn("failed to sync app context from session", map[string]interface{}{
			"session_id": s.ID,
			"error":      err.Error(),
		})
	}
}

// Start restores persisted state: legacy data is migrated, the latest
// unexpired session is resumed (or a new one created), the current draft
// pointer is read back and the expiry sweep is started.
func (a *App) Start(ctx context.Context) error {
	if err := a.Context.Load(ctx); err != nil {
		return err
	}
	if _, ok, err := a.Sessions.Load(ctx); err != nil {
		return err
	} else if !ok {
		if _, err := a.Sessions.CreateSession(ctx); err != nil {
			return err
		}
	}

	report, err := a.Sessions.MigrateLegacy(ctx)
	if err != nil {
		a.logger.Warn("legacy migration failed", map[string]interface{}{"error": err.Error()})
	} else if len(report.Keys) > 0 {
		a.logger.Info("legacy context migrated", map[string]interface{}{
			"keys":     report.Keys,
			"accepted": len(report.Accepted),
			"rejected": len(report.Rejected),
		})
	}

	if err := a.Drafts.Restore(ctx); err != nil {
		a.logger.Warn("failed to restore current draft", map[string]interface{}{"error": err.Error()})
	}

	a.Sessions.Start(ctx)
	return nil
}

// Reset discards the session and the application context.
func (a *App) Reset(ctx context.Context) error {
	if _, err := a.Sessions.Reset(ctx); err != nil {
		return err
	}
	return a.Context.Reset(ctx)
}

// Close stops background work and releases the storage backend.
func (a *App) Close() error {
	a.Sessions.Stop()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return a.Store.Close()
}
