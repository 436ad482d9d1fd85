package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/arsketch/internal/config"
	"github.com/dyluth/arsketch/internal/peer"
	"github.com/dyluth/arsketch/internal/printer"
	"github.com/dyluth/arsketch/internal/status"
	"github.com/dyluth/arsketch/internal/store"
	"github.com/dyluth/arsketch/internal/syncengine"
	"github.com/dyluth/arsketch/pkg/sketch"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects printer output into a buffer for the rest of the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	noColor := color.NoColor
	color.NoColor = true

	buf := new(bytes.Buffer)
	printer.SetOutput(buf, buf)
	t.Cleanup(func() {
		printer.SetOutput(nil, nil)
		color.NoColor = noColor
	})
	return buf
}

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr
}

func testConfig(t *testing.T, mr *miniredis.Miniredis, device string) *config.Config {
	cfg := config.Default("test-session")
	cfg.Device = device
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Store.Path = filepath.Join(t.TempDir(), "arsketch.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func joinTestSession(t *testing.T, mr *miniredis.Miniredis, device string) *session {
	s, err := openSession(context.Background(), testConfig(t, mr, device))
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func waitForState(t *testing.T, e *syncengine.Engine, cond func(syncengine.State) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := e.State(context.Background())
		return err == nil && cond(st)
	}, 2*time.Second, 10*time.Millisecond)
}

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "arsketch",
		Short: "Test root command",
		RunE:  rootCmd.RunE,
	}

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Usage:", "Help should be displayed")
}

// TestRootCommand_RegistersSubcommands verifies every subcommand is wired to the root.
func TestRootCommand_RegistersSubcommands(t *testing.T) {
	for _, name := range []string{"init", "join", "peers", "inspect", "classify"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-01-01)", rootCmd.Version)
}

func TestInit(t *testing.T) {
	captureOutput(t)

	oldPath := configPath
	configPath = filepath.Join(t.TempDir(), "arsketch.yml")
	initSession, initDevice, initRedis, forceInit = "kitchen", "ipad-1", "redis://localhost:6390", false
	t.Cleanup(func() {
		configPath = oldPath
		initSession, initDevice, initRedis, forceInit = "", "", "", false
	})

	require.NoError(t, runInit(initCmd, nil))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "kitchen", cfg.Session)
	assert.Equal(t, "ipad-1", cfg.Device)
	assert.Equal(t, "redis://localhost:6390", cfg.Redis.URL)

	err = runInit(initCmd, nil)
	require.Error(t, err)
	assert.Equal(t, "configuration already exists", err.Error())

	forceInit = true
	initSession = "garage"
	require.NoError(t, runInit(initCmd, nil))
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "garage", cfg.Session)
}

func TestLoadConfig_Missing(t *testing.T) {
	buf := captureOutput(t)

	oldPath := configPath
	configPath = filepath.Join(t.TempDir(), "missing.yml")
	t.Cleanup(func() { configPath = oldPath })

	_, err := loadConfig()
	require.Error(t, err)
	assert.Equal(t, "arsketch.yml not found", err.Error())
	assert.Contains(t, buf.String(), "arsketch init --session")
}

func TestConsole_ShareAndSketch(t *testing.T) {
	captureOutput(t)
	mr := startMiniredis(t)
	ctx := context.Background()

	a := joinTestSession(t, mr, "device-a")
	b := joinTestSession(t, mr, "device-b")
	ca := &console{engine: a.engine, sim: a.sim}
	cb := &console{engine: b.engine, sim: b.sim}

	waitForState(t, a.engine, func(st syncengine.State) bool { return len(st.Peers) == 1 })

	require.NoError(t, ca.exec(ctx, "map mapped"))
	require.NoError(t, ca.exec(ctx, "track normal"))
	require.NoError(t, ca.exec(ctx, "draw 1 2 3"))
	require.NoError(t, ca.exec(ctx, "share"))

	waitForState(t, b.engine, func(st syncengine.State) bool {
		return st.Phase == syncengine.PhaseAwaitingRelocalization
	})

	r, err := b.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.RuleMoveToReference, r.Rule)
	assert.True(t, r.ShowThumbnail)

	require.NoError(t, cb.exec(ctx, "track normal"))
	st, err := b.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncengine.PhaseSynced, st.Phase)
	assert.Equal(t, sketch.PeerID("device-a"), st.MapAuthority)
	assert.Equal(t, []string{"stroke-device-a-0"}, st.Anchors)

	require.NoError(t, ca.exec(ctx, "draw 4 5 6 7 8 9"))
	waitForState(t, b.engine, func(st syncengine.State) bool { return len(st.Anchors) == 2 })

	// The first stroke reached device-b before the snapshot did
	added := b.sim.Added()
	require.Len(t, added, 2)
	assert.Equal(t, "stroke-device-a-0", added[0].ID)
	assert.Equal(t, "stroke-device-a-1", added[1].ID)
	assert.True(t, added[1].IsSegment())
}

func TestConsole_SaveResetLoad(t *testing.T) {
	buf := captureOutput(t)
	mr := startMiniredis(t)
	ctx := context.Background()

	s := joinTestSession(t, mr, "device-a")
	c := &console{engine: s.engine, sim: s.sim}

	require.NoError(t, c.exec(ctx, "map extending"))
	require.NoError(t, c.exec(ctx, "track normal"))
	require.NoError(t, c.exec(ctx, "draw 0 0 -1"))
	require.NoError(t, c.exec(ctx, "save"))
	require.NoError(t, c.exec(ctx, "reset"))

	st, err := s.engine.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Anchors)

	require.NoError(t, c.exec(ctx, "load"))
	st, err = s.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncengine.PhaseAwaitingRelocalization, st.Phase)
	assert.Empty(t, st.MapAuthority)
	assert.Equal(t, []string{"stroke-device-a-0"}, st.Anchors)
	assert.Contains(t, buf.String(), status.MsgMoveToReference)

	buf.Reset()
	require.NoError(t, inspectSnapshot(ctx, s.store, false))
	assert.Contains(t, buf.String(), "Captured by: device-a")
	assert.Contains(t, buf.String(), "stroke-device-a-0")

	buf.Reset()
	require.NoError(t, inspectSnapshot(ctx, s.store, true))
	assert.Contains(t, buf.String(), `"id": "stroke-device-a-0"`)
	assert.NotContains(t, buf.String(), "thumbnail")
}

func TestConsole_Errors(t *testing.T) {
	captureOutput(t)
	mr := startMiniredis(t)
	ctx := context.Background()

	s := joinTestSession(t, mr, "device-a")
	c := &console{engine: s.engine, sim: s.sim}

	tests := []struct {
		line    string
		wantErr string
	}{
		{"draw 1 2", "usage: draw"},
		{"draw a b c", "invalid coordinate"},
		{"track sideways", "unknown tracking quality"},
		{"map everywhere", "unknown mapping status"},
		{"share", "can't get current world map"},
		{"load", "failed to load map snapshot"},
		{"dance", "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := c.exec(ctx, tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.ErrorIs(t, c.exec(ctx, "quit"), errQuit)
	assert.NoError(t, c.exec(ctx, "   "))
}

func TestConsole_Run(t *testing.T) {
	buf := captureOutput(t)
	mr := startMiniredis(t)

	s := joinTestSession(t, mr, "device-a")
	c := &console{engine: s.engine, sim: s.sim}

	in := strings.NewReader("help\nbogus\nstate\nquit\ndraw 1 1 1\n")
	require.NoError(t, c.run(context.Background(), in))

	out := buf.String()
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "unknown command")
	assert.Contains(t, out, "Phase:          idle")
	assert.Empty(t, s.sim.Added(), "commands after quit are not run")
}

func TestInspect_NoSnapshot(t *testing.T) {
	buf := captureOutput(t)

	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "arsketch.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, inspectSnapshot(context.Background(), st, false))
	assert.Contains(t, buf.String(), "No saved map")
}

func TestInspect_Corrupt(t *testing.T) {
	captureOutput(t)
	ctx := context.Background()

	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "arsketch.db"))
	require.NoError(t, err)
	defer st.Close()

	anchor, err := sketch.EncodeAnchor(sketch.Anchor{ID: "stroke-x-0", Transform: sketch.Identity()})
	require.NoError(t, err)
	require.NoError(t, st.SaveSnapshot(ctx, anchor))

	err = inspectSnapshot(ctx, st, false)
	require.Error(t, err)
	assert.Equal(t, "saved map is corrupt", err.Error())
}

func TestListPeers(t *testing.T) {
	buf := captureOutput(t)
	mr := startMiniredis(t)
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, listPeers(ctx, rdb, "test-session"))
	assert.Contains(t, buf.String(), "No peers in session 'test-session'")

	mr.SAdd(peer.RosterKey("test-session"), "phone-2", "ipad-1")

	buf.Reset()
	rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, listPeers(ctx, rdb, "test-session"))
	out := buf.String()
	assert.Less(t, strings.Index(out, "ipad-1"), strings.Index(out, "phone-2"))
}

func TestClassify(t *testing.T) {
	buf := captureOutput(t)
	t.Cleanup(func() {
		classifyTracking, classifyMapping = "normal", string(sketch.MappingNotAvailable)
		classifySaved, classifyRelocalizing, classifyAnchor, classifyJSON = false, false, false, false
		classifyPeers, classifyAuthority, classifyFrameAnchors = nil, "", 0
	})

	classifyTracking = "limited(relocalizing)"
	classifyMapping = "not_available"
	classifyRelocalizing = true
	classifyAuthority = "ipad-1"

	signals, err := buildSignals()
	require.NoError(t, err)
	assert.True(t, signals.Tracking.IsLimited(sketch.ReasonRelocalizing))

	require.NoError(t, runClassify(classifyCmd, nil))
	assert.Contains(t, buf.String(), "Rule 6")
	assert.Contains(t, buf.String(), status.MsgMoveToReference)

	buf.Reset()
	classifyTracking = "normal"
	classifyRelocalizing = false
	classifyAuthority = ""
	classifySaved = true
	classifyPeers = []string{"ipad-1", "phone-2"}
	classifyFrameAnchors = 3
	classifyJSON = true
	require.NoError(t, runClassify(classifyCmd, nil))
	assert.Contains(t, buf.String(), `"rule":3`)

	classifyTracking = "wobbly"
	_, err = buildSignals()
	require.Error(t, err)
	assert.Equal(t, "invalid tracking state", err.Error())

	classifyTracking = "normal"
	classifyMapping = "everywhere"
	_, err = buildSignals()
	require.Error(t, err)
	assert.Equal(t, "invalid mapping status", err.Error())
}
