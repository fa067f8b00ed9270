package app

import (
	"testing"

	"github.com/lumenfoto/fotoaccess/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp(t *testing.T) {
	builder := NewApp()

	assert.NotNil(t, builder)
	assert.NotNil(t, builder.services)
	assert.NotNil(t, builder.models)
	assert.NotNil(t, builder.fxOptions)
	assert.NotNil(t, builder.errors)
	assert.Empty(t, builder.services)
	assert.Empty(t, builder.models)
	assert.Empty(t, builder.fxOptions)
	assert.Empty(t, builder.errors)
}

func TestAppBuilder_WithConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		builder := NewApp()

		result := builder.WithConfig(cfg)

		assert.Equal(t, builder, result)
		assert.Equal(t, cfg, builder.config)
	})

	t.Run("nil config", func(t *testing.T) {
		builder := NewApp()

		result := builder.WithConfig(nil)

		assert.Equal(t, builder, result)
		assert.Nil(t, builder.config)
		assert.Len(t, builder.errors, 1)
		assert.Contains(t, builder.errors[0].Error(), "config cannot be nil")
	})
}

func TestAppBuilder_WithDatabase(t *testing.T) {
	builder := NewApp()

	type TestModel struct {
		ID   uint   `gorm:"primaryKey"`
		Name string `gorm:"size:255"`
	}

	model1 := TestModel{}
	model2 := &TestModel{}

	result := builder.WithDatabase(model1, model2)

	assert.Equal(t, builder, result)
	assert.True(t, builder.services["database"])
	assert.Len(t, builder.models, 2)
	assert.Contains(t, builder.models, model1)
	assert.Contains(t, builder.models, model2)
}

func TestAppBuilder_WithAccess(t *testing.T) {
	builder := NewApp()

	result := builder.WithAccess()

	assert.Equal(t, builder, result)
	assert.True(t, builder.services["access"])
	assert.True(t, builder.services["ratelimit"])
	assert.True(t, builder.services["audit"])
	assert.True(t, builder.services["database"])
	assert.NotEmpty(t, builder.models, "access pulls its own models in")
}

func TestAppBuilder_WithRateLimit(t *testing.T) {
	builder := NewApp()

	result := builder.WithRateLimit()

	assert.Equal(t, builder, result)
	assert.True(t, builder.services["ratelimit"])
	assert.True(t, builder.services["audit"], "rate limiting always audits blocks")
}

func TestAppBuilder_Build(t *testing.T) {
	t.Run("access stack", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.Database.DSN = ":memory:"

		app, err := NewApp().
			WithConfig(cfg).
			WithAccess().
			Build()
		require.NoError(t, err)
		require.NotNil(t, app)

		assert.NotNil(t, app.DB())
		assert.NotNil(t, app.Logger())
		assert.Equal(t, cfg, app.Config())
	})

	t.Run("builder error surfaces", func(t *testing.T) {
		app, err := NewApp().WithConfig(nil).Build()
		assert.Error(t, err)
		assert.Nil(t, app)
	})
}
