package app

import (
	"fmt"

	"github.com/lumenfoto/fotoaccess/config"
	"github.com/lumenfoto/fotoaccess/database"
	"github.com/lumenfoto/fotoaccess/middleware/ratelimit"
	"github.com/lumenfoto/fotoaccess/server"
	"github.com/lumenfoto/fotoaccess/services/access"
	"github.com/lumenfoto/fotoaccess/services/audit"
	"github.com/lumenfoto/fotoaccess/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithAudit() *AppBuilder {
	b.services["audit"] = true
	return b
}

func (b *AppBuilder) WithRateLimit() *AppBuilder {
	b.services["ratelimit"] = true
	b.services["audit"] = true
	return b
}

// WithAccess enables token resolution. It pulls in the database (with the
// access models), the audit trail and the adaptive rate-limit tracker.
func (b *AppBuilder) WithAccess() *AppBuilder {
	b.services["access"] = true
	b.services["ratelimit"] = true
	b.services["audit"] = true
	b.services["database"] = true
	b.models = append(b.models, access.Models()...)
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var db *gorm.DB
	if b.services["database"] {
		modelsOpt := &database.ModelsOption{}
		if len(b.models) > 0 {
			modelsOpt = database.WithModels(b.models...)
		}

		db, err = database.ProvideDatabase(*b.config, modelsOpt)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	app := &App{
		config: b.config,
		logger: logger,
		db:     db,
	}

	fxOptions := b.buildFxOptions(db, logger)
	fxOptions = append(fxOptions, fx.Invoke(func(srv *server.Server) {
		app.server = srv
	}))

	app.fx = fx.New(fxOptions...)

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.services["access"] && !b.services["database"] {
		b.services["database"] = true
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
}

func (b *AppBuilder) buildFxOptions(db *gorm.DB, logger *logging.Service) []fx.Option {
	var options []fx.Option

	options = append(options,
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.NopLogger,
	)

	if db != nil {
		options = append(options, fx.Supply(db))
	}

	options = append(options, server.NewProvider())

	if b.services["audit"] {
		options = append(options, audit.Module)
	}
	if b.services["ratelimit"] {
		options = append(options, ratelimit.Module)
	}
	if b.services["access"] {
		options = append(options, access.Module)
	}

	options = append(options, b.fxOptions...)

	return options
}
