package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/config"
	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/exitcode"
	"github.com/felixgeelhaar/tradeflow/internal/health"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/plan"
	"github.com/felixgeelhaar/tradeflow/internal/version"
)

const fastConfig = `
server:
  port: 0
  shutdown_timeout: 2s
rate_limit:
  enabled: false
log:
  level: error
modules:
  min_latency: 0s
  max_latency: 0s
`

const samplePlanYAML = `
title: Samsung Electronics review
description: Quote and analysis
steps:
  - title: Collect quote
    description: Current price
    order: 1
    type: data_collection
    mcpModules: [naver-securities, yahoo-finance]
    parameters:
      symbol: "005930"
  - title: Analyse
    description: Trend analysis
    order: 2
    type: analysis
    mcpModules: [openai-analysis]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the root command and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tradeflow "+version.GetInfo().Short()+"\n", out)

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetInfo().GoVersion, info.GoVersion)

	out, err = run(t, "version", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "built")
}

func TestConfigView(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)

	out, err := run(t, "config", "view", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "jwt_secret: "+redacted)
	assert.NotContains(t, out, config.DevJWTSecret)
	assert.Contains(t, out, "enabled: false")

	out, err = run(t, "config", "view", "--config", cfgPath, "--show-secrets")
	require.NoError(t, err)
	assert.Contains(t, out, config.DevJWTSecret)
}

func TestConfigViewAppliesEnvironment(t *testing.T) {
	t.Setenv("TRADEFLOW_PORT", "9999")
	out, err := run(t, "config", "view", "--config", writeFile(t, "tradeflow.yaml", fastConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "port: 9999")
}

func TestConfigViewFlagOverrides(t *testing.T) {
	out, err := run(t, "config", "view", "--config", writeFile(t, "tradeflow.yaml", fastConfig), "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradeflow.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Port, cfg.Server.Port)

	_, err = run(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "config", "init", path, "--force")
	require.NoError(t, err)
}

func TestModulesList(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)

	out, err := run(t, "modules", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "naver-securities")
	assert.Contains(t, out, "openai-analysis")

	out, err = run(t, "modules", "list", "--config", cfgPath, "--type", "analysis")
	require.NoError(t, err)
	assert.Contains(t, out, "openai-analysis")
	assert.NotContains(t, out, "naver-securities")

	_, err = run(t, "modules", "list", "--config", cfgPath, "--type", "crypto")
	require.Error(t, err)
	assert.Equal(t, exitcode.ValidationError, exitcode.DetermineExitCode(err))
}

func TestModulesGet(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)

	out, err := run(t, "modules", "get", "yahoo-finance", "--config", cfgPath)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "yahoo-finance", m["id"])

	_, err = run(t, "modules", "get", "nope", "--config", cfgPath)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	assert.Equal(t, exitcode.NotFound, exitcode.DetermineExitCode(err))
}

func TestModulesCall(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)

	out, err := run(t, "mcp", "call", "naver-securities", "data_collection", "--config", cfgPath, "-p", "symbol=005930")
	require.NoError(t, err)
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "naver-securities", resp["moduleId"])

	_, err = run(t, "modules", "call", "naver-securities", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", in: nil, want: nil},
		{name: "string", in: []string{"symbol=005930x"}, want: map[string]any{"symbol": "005930x"}},
		{name: "json number", in: []string{"days=30"}, want: map[string]any{"days": float64(30)}},
		{name: "json list", in: []string{`tags=["a","b"]`}, want: map[string]any{"tags": []any{"a", "b"}}},
		{name: "quoted keeps string", in: []string{`symbol="005930"`}, want: map[string]any{"symbol": "005930"}},
		{name: "value with equals", in: []string{"q=a=b"}, want: map[string]any{"q": "a=b"}},
		{name: "missing equals", in: []string{"symbol"}, wantErr: true},
		{name: "empty key", in: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsKind(err, errors.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanValidate(t *testing.T) {
	out, err := run(t, "plan", "validate", "-f", writeFile(t, "plan.yaml", samplePlanYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "Samsung Electronics review (2 steps)")

	_, err = run(t, "plan", "validate", "-f", writeFile(t, "plan.yaml", "title: \"\"\nsteps: []\n"))
	require.Error(t, err)

	_, err = run(t, "plan", "validate")
	require.Error(t, err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))
}

func TestPlanRun(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)
	planPath := writeFile(t, "plan.yaml", samplePlanYAML)
	output := filepath.Join(t.TempDir(), "result.json")

	out, err := run(t, "plan", "run", "--config", cfgPath, "-f", planPath, "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Samsung Electronics review")
	assert.Contains(t, out, "2/2 completed")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var p plan.Plan
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, plan.StatusCompleted, p.Status)
	assert.Equal(t, localOwner, p.UserID)
	for _, s := range p.Steps {
		assert.Equal(t, plan.StepCompleted, s.Status, s.Title)
	}
}

func TestPlanRunFailsOnDisabledModule(t *testing.T) {
	catalog := writeFile(t, "catalog.yaml", `
modules:
  - id: quotes
    name: quotes
    displayName: Quotes
    type: securities
    version: 1.0.0
    isActive: false
    capabilities: [quote]
`)
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig+"  catalog_file: "+catalog+"\n")
	planPath := writeFile(t, "plan.yaml", `
title: Disabled
description: Uses an inactive module
steps:
  - title: Collect
    description: Quote
    order: 1
    type: data_collection
    mcpModules: [quotes]
`)

	out, err := run(t, "plan", "run", "--config", cfgPath, "-f", planPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, out, "0/1 completed")
}

func TestTokenIssue(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)

	out, err := run(t, "token", "issue", "--config", cfgPath, "--email", "kim@example.com", "--user-id", "u-1", "--json")
	require.NoError(t, err)

	var res struct {
		Token     string    `json:"token"`
		UserID    string    `json:"userId"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "u-1", res.UserID)

	id, err := auth.NewSessionManager([]byte(config.DevJWTSecret), "tradeflow").Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.ID)
	assert.Equal(t, "kim@example.com", id.Email)
	assert.Equal(t, auth.RoleUser, id.Role)

	out, err = run(t, "token", "issue", "--config", cfgPath, "--email", "lee@example.com", "--ttl", "1h")
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), ".")))

	_, err = run(t, "token", "issue", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, exitcode.ValidationError, exitcode.DetermineExitCode(err))
}

func TestServicesProbes(t *testing.T) {
	cfg := config.Default()
	cfg.Modules.MinLatency, cfg.Modules.MaxLatency = 0, 0

	svc, err := newServices(context.Background(), cfg, log.Discard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.close(context.Background())) })

	res := svc.probes("test").CheckReadiness(context.Background())
	assert.Equal(t, health.StatusHealthy, res.Status)
	assert.Contains(t, res.Checks, "module-catalog")
	assert.Contains(t, res.Checks, "chat-store")
	assert.Contains(t, res.Checks, "executions")
}

func TestServeStopsOnCancel(t *testing.T) {
	cfgPath := writeFile(t, "tradeflow.yaml", fastConfig)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	var out string
	go func() {
		var err error
		out, err = runContext(t, ctx, "serve", "--config", cfgPath, "--address", "127.0.0.1")
		errc <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
		assert.Contains(t, out, "Server stopped gracefully")
		assert.Contains(t, out, "/health/ready")
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
