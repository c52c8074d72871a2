package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlPlan = `
title: KOSPI screen
description: Pull KRX data and summarise
steps:
  - title: Collect
    description: Market data
    order: 0
    type: data_collection
    mcpModules: [krx-data, yahoo-finance]
    parameters:
      symbol: "005930"
      window:
        days: 30
  - title: Summarise
    description: Write it up
    order: 1
    type: report_generation
    mcpModules: [openai-analysis]
    useAgent: true
`

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlPlan), 0o600))

	in, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "KOSPI screen", in.Title)
	require.Len(t, in.Steps, 2)
	assert.Equal(t, []string{"krx-data", "yahoo-finance"}, in.Steps[0].Modules)
	assert.Equal(t, "005930", in.Steps[0].Parameters["symbol"])
	window, ok := in.Steps[0].Parameters["window"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 30, window["days"])
	assert.True(t, in.Steps[1].UseAgent)
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"title": "t", "description": "d",
		"steps": [{"title": "s", "description": "d", "order": 0, "type": "analysis", "mcpModules": []}]
	}`), 0o600))

	in, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, StepAnalysis, in.Steps[0].Type)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read plan file")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "unmarshal plan")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("title: x\n"), 0o600))
	_, err = LoadFile(invalid)
	assert.ErrorContains(t, err, "validate plan")
}

func TestSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	p := &Plan{ID: "p1", Title: "t", Status: StatusDraft}

	require.NoError(t, SaveFile(p, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "draft"`)
}
