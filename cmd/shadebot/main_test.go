package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/config"
	"shadebot/internal/dispatch"
	"shadebot/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.Store.UsageDir = t.TempDir()
	c.Bot.Personas = []string{"Sofía"}
	c.LLM.Provider = ""
	c.LLM.APIKey = ""
	return c
}

func TestRootCommandTree(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "chat", "classify", "usage", "reset", "release", "takeover", "record"})

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))
}

func TestNewApp_MemoryStoreWithoutProvider(t *testing.T) {
	a, ctx, err := newApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.tracker)
	assert.Nil(t, a.watcher)

	res := a.dispatcher.Process(ctx, dispatch.Message{UserID: "cli", Text: "hola"})
	text, ok := res.Outcome.(types.Text)
	require.True(t, ok, "got %#v", res.Outcome)
	assert.Contains(t, text.Content, "Sofía")
	assert.Equal(t, types.StateActive, res.State)
}

func TestNewApp_CatalogFileAndDefinitionsWatcher(t *testing.T) {
	dir := t.TempDir()
	defsPath := filepath.Join(dir, "definitions.yaml")
	require.NoError(t, os.WriteFile(defsPath, []byte(`
intents:
  - key: hours
    description: horario de atencion
    keywords: ["horario", "a que hora"]
    priority: 5
    handler_type: pattern
    response: "Abrimos de lunes a sábado de 9 a 18 h."
`), 0644))

	c := testConfig(t)
	c.Definitions.Path = defsPath
	c.Definitions.Watch = true
	c.Catalog.Path = filepath.Join(dir, "missing.yaml")

	_, _, err := newApp(context.Background(), c)
	require.Error(t, err, "a missing catalog file fails wiring")

	c.Catalog.Path = ""
	a, ctx, err := newApp(context.Background(), c)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.watcher)

	res := a.dispatcher.Process(ctx, dispatch.Message{UserID: "cli", Text: "cual es su horario"})
	text, ok := res.Outcome.(types.Text)
	require.True(t, ok, "got %#v", res.Outcome)
	assert.Contains(t, text.Content, "lunes a sábado")
}

func TestNewApp_PersistsUsageOnClose(t *testing.T) {
	c := testConfig(t)
	a, _, err := newApp(context.Background(), c)
	require.NoError(t, err)
	a.Close()

	_, err = os.Stat(filepath.Join(c.Store.UsageDir, "usage.json"))
	assert.NoError(t, err)
}
