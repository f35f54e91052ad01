// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/session"
	"github.com/jeranaias/agentchat/internal/transport/httpagent"
	"github.com/jeranaias/agentchat/internal/transport/memory"
	"github.com/jeranaias/agentchat/internal/transport/wsagent"
)

func clearEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"AGENTCHAT_URL", "AGENTCHAT_TRANSPORT", "AGENTCHAT_SESSION",
		"AGENTCHAT_THEME", "AGENTCHAT_LOG_LEVEL", "AGENTCHAT_DEBUG",
	} {
		t.Setenv(key, "")
	}
	return home
}

// run executes the command tree and returns stdout, stderr and the error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// =============================================================================
// CONFIG LOADING TESTS
// =============================================================================

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[agent]
url = "http://agent.internal:9000"
transport = "ws"
session_id = "from-file"
`), 0600))

	o := &globalOptions{configPath: path, transport: "HTTP", sessionID: "from-flag"}
	cfg, got, err := o.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, path, got)
	assert.Equal(t, "http://agent.internal:9000", cfg.Agent.URL)
	assert.Equal(t, config.TransportHTTP, cfg.Agent.Transport)
	assert.Equal(t, "from-flag", cfg.Agent.SessionID)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTCHAT_THEME", "light")

	o := &globalOptions{configPath: filepath.Join(t.TempDir(), "absent.toml"), demo: true}
	cfg, _, err := o.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.TransportDemo, cfg.Agent.Transport)
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, config.Default().Agent.URL, cfg.Agent.URL)
}

func TestLoadConfig_InvalidFlagIsConfigError(t *testing.T) {
	clearEnv(t)
	o := &globalOptions{configPath: filepath.Join(t.TempDir(), "absent.toml"), transport: "carrier-pigeon"}
	_, _, err := o.loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

// =============================================================================
// TRANSPORT TESTS
// =============================================================================

func TestBuildTransport(t *testing.T) {
	logger := zerolog.Nop()
	tests := []struct {
		transport string
		wantType  interface{}
		wantLabel string
	}{
		{config.TransportHTTP, &httpagent.Client{}, "http 127.0.0.1:8787"},
		{config.TransportWebSocket, &wsagent.Client{}, "ws 127.0.0.1:8787"},
		{config.TransportDemo, &memory.Agent{}, "demo agent"},
	}
	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			cfg := config.Default()
			cfg.Agent.Transport = tt.transport
			cfg.Agent.Push = false

			tr, label, err := buildTransport(cfg, logger)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, tr)
			assert.Equal(t, tt.wantLabel, label)
		})
	}

	cfg := config.Default()
	cfg.Agent.Transport = "smoke"
	_, _, err := buildTransport(cfg, logger)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// ASK TESTS
// =============================================================================

func TestAskText(t *testing.T) {
	got, err := askText(strings.NewReader("ignored"), []string{"what", "is", "new?"})
	require.NoError(t, err)
	assert.Equal(t, "what is new?", got)

	got, err = askText(strings.NewReader("  from stdin\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = askText(strings.NewReader("dash means stdin"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "dash means stdin", got)

	_, err = askText(strings.NewReader("   "), nil)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_DemoStreamsReply(t *testing.T) {
	clearEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	stdout, _, err := run(t, "--config", cfgPath, "--demo", "--log-level", "disabled", "ask", "hello", "world")
	require.NoError(t, err)

	assert.Contains(t, stdout, "You wrote 2 word(s)")
	assert.Contains(t, stdout, "> hello world")
	assert.True(t, strings.HasSuffix(stdout, "\n"))
}

func TestReplyPrinter_StreamsDeltasAndReportsFailure(t *testing.T) {
	agent := memory.NewAgent(memory.WithManualExchanges())
	var out bytes.Buffer
	p := newReplyPrinter(&out, true)
	ctrl := session.New(agent, "cli", session.WithLogger(zerolog.Nop()), session.WithNotifier(p.notify))
	p.ctrl = ctrl
	t.Cleanup(func() { _ = ctrl.Close() })

	require.NoError(t, ctrl.Send("status?"))
	ex, err := agent.NextExchange(2 * time.Second)
	require.NoError(t, err)

	ex.Delta(0, "All systems ")
	ex.Delta(0, "nominal, mostly.")
	ex.Fail("upstream hiccup")

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("printer never saw the exchange end")
	}
	p.finish()

	assert.Equal(t, "All systems nominal, mostly.\n", out.String())
	assert.Equal(t, session.StatusError, ctrl.Status())
}

// =============================================================================
// CONFIG COMMAND TESTS
// =============================================================================

func TestConfigCommands_SetGetShow(t *testing.T) {
	clearEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.toml")

	stdout, _, err := run(t, "--config", cfgPath, "config", "set", "ui.theme", "light")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ui.theme")

	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stdout, _, err = run(t, "--config", cfgPath, "config", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "light\n", stdout)

	stdout, _, err = run(t, "--config", cfgPath, "--session", "flagged", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, `theme = "light"`)
	assert.Contains(t, stdout, `session_id = "flagged"`)

	stdout, _, err = run(t, "--config", cfgPath, "config", "show", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"theme": "light"`)
}

func TestConfigCommands_Rejections(t *testing.T) {
	clearEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	_, _, err := run(t, "--config", cfgPath, "config", "set", "ui.theme", "neon")
	assert.Equal(t, ExitConfigError, ExitCode(err))
	_, statErr := os.Stat(cfgPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "invalid values are not saved")

	_, _, err = run(t, "--config", cfgPath, "config", "get", "ui.nope")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfigKeys(t *testing.T) {
	clearEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	stdout, _, err := run(t, "--config", cfgPath, "--url", "http://10.0.0.2:9000", "config", "keys")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, len(config.Keys()))
	for _, line := range lines {
		if strings.HasPrefix(line, "agent.url ") {
			assert.True(t, strings.HasSuffix(line, "http://10.0.0.2:9000"), line)
			return
		}
	}
	t.Fatalf("agent.url missing from %q", stdout)
}

// =============================================================================
// MISC TESTS
// =============================================================================

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "agentchat "+Version)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", NewUsageError("bad"), ExitUsageError},
		{"validation", fmt.Errorf("wrap: %w", config.ValidateErrors{{Field: "ui.theme", Message: "bad"}}), ExitConfigError},
		{"config command", configError("load", errors.New("disk")), ExitConfigError},
		{"agent", &session.StreamError{Reason: "down"}, ExitAgentError},
		{"ask", &CommandError{Command: "ask", Action: "stream", Reason: "failed"}, ExitAgentError},
		{"timeout", context.DeadlineExceeded, ExitAgentError},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), ExitInterrupted},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
