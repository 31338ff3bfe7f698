package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/config"
	"github.com/ent0n29/switchboard/internal/dialogue"
)

func testConfig() config.Config {
	return config.Config{
		SessionInactivityTimeout: time.Minute,
		ShutdownTimeout:          time.Second,
		MetricsNamespace:         "test_app",
		CookieName:               "sb",
		BrainMode:                "mock",
		MemoryKeywordLimit:       10,
		MemoryUploadMaxBytes:     1 << 20,
		RedactPII:                true,
	}
}

func TestBuildWiresAgentsAndBrain(t *testing.T) {
	res, err := Build(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Len(t, res.Agents, 11)
	assert.Equal(t, "mock", res.Brain)
	assert.Equal(t, "memory", res.Knowledge.Backend())

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/security/chat", "application/json",
		strings.NewReader(`{"message":"scan for xss, mail me at ops@example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, dialogue.SourceBrain, body["source"])
	assert.Contains(t, body["response"], "[security/vulnerability]")
	assert.Contains(t, body, "security_analysis")

	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)
	var engine *dialogue.Engine
	for _, a := range res.Agents {
		if a.Definition.ID == "security" {
			engine = a.Engine
		}
	}
	require.NotNil(t, engine)
	records := engine.Recent(cookies[0].Value, 10)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].RawMessage, "ops@example.com")
}

func TestExpiredSessionsAreForgotten(t *testing.T) {
	cfg := testConfig()
	cfg.SessionInactivityTimeout = 200 * time.Millisecond
	res, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	sess := res.Sessions.Create()
	engine := res.Agents[0].Engine
	_, err = engine.Chat(context.Background(), sess.ID, "hello")
	require.NoError(t, err)
	require.Len(t, engine.Recent(sess.ID, 10), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res.Sessions.StartJanitor(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(engine.Recent(sess.ID, 10)) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, res.Sessions.ActiveCount())

	// A chat that resolved the session before expiry may still append.
	_, err = engine.Chat(context.Background(), sess.ID, "late reply")
	require.NoError(t, err)
	require.Len(t, engine.Recent(sess.ID, 10), 1)
	assert.Eventually(t, func() bool {
		return len(engine.Recent(sess.ID, 10)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBuildWithSQLiteKnowledge(t *testing.T) {
	cfg := testConfig()
	cfg.BrainMode = "off"
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "memories.db")
	res, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Equal(t, "sqlite", res.Knowledge.Backend())
	assert.Equal(t, "off", res.Brain)
}

func TestBuildRejectsBadSettings(t *testing.T) {
	cfg := testConfig()
	cfg.BrainMode = "telepathy"
	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.AgentsDir = filepath.Join(t.TempDir(), "missing")
	_, err = Build(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.DatabaseURL = "mysql://nope"
	_, err = Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
