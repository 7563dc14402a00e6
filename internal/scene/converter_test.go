package scene

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/cryexport/internal/config"
	"github.com/Faultbox/cryexport/internal/export"
	"github.com/Faultbox/cryexport/internal/layer"
	"github.com/Faultbox/cryexport/internal/rc"
	"github.com/Faultbox/cryexport/internal/rc/rctest"
	"github.com/Faultbox/cryexport/internal/workspace"
	"github.com/Faultbox/cryexport/pkg/math"
)

const rcExe = "/tools/rc/rc.exe"

var testNodes = []export.Node{
	{Name: "CryExportNode_door.cga", Type: export.NodeTypeCGA},
	{Name: "CryExportNode_rock.cgf", Type: export.NodeTypeCGF, Objects: []export.Object{{
		Location:      math.Vec3{X: 1, Y: 2, Z: 3},
		DeltaRotation: math.QuatIdentity(),
	}}},
	{Name: "CryExportNode_walk.anm", Type: export.NodeTypeANM},
	{Name: "CryExportNode_hero.chr"}, // type from name
}

type harness struct {
	conv *Converter
	rec  *rctest.Recorder
	logs *observer.ObservedLogs
	doc  string
}

func newHarness(t *testing.T, opts config.Options, wait bool) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		rec:  &rctest.Recorder{},
		logs: logs,
		doc:  filepath.Join(t.TempDir(), "out", "scene.dae"),
	}
	cfg := config.Conversion{
		RCPath:           rcExe,
		DocumentPath:     h.doc,
		WaitForRecompile: wait,
		Options:          opts,
	}
	h.conv = NewConverter(cfg, h.rec, workspace.NewLocks(), zap.New(core))
	h.conv.layers = &layer.Builder{GUID: func() string { return "{test}" }}
	return h
}

func (h *harness) convert(nodes []export.Node) Report {
	return h.conv.Convert(context.Background(), Document{Body: []byte("<COLLADA/>"), Nodes: nodes})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func recompiledPaths(calls []rctest.Call) []string {
	var targets []string
	for _, c := range calls[1:] {
		targets = append(targets, c.Targets...)
	}
	sort.Strings(targets)
	return targets
}

func TestConvertPasses(t *testing.T) {
	h := newHarness(t, config.Options{SaveDAE: true}, true)

	report := h.convert(testNodes)

	calls := h.rec.Calls()
	require.Len(t, calls, 4)

	primary := calls[0]
	assert.Equal(t, rcExe, primary.Executable)
	assert.Equal(t, []string{"/verbose", "/threads=processors", "/refresh"}, primary.Flags)
	assert.Equal(t, []string{h.doc}, primary.Targets)

	dir := filepath.Dir(h.doc)
	assert.Equal(t, []string{
		filepath.Join(dir, "CryExportNode_door.cga"),
		filepath.Join(dir, "CryExportNode_hero.chr"),
		filepath.Join(dir, "CryExportNode_rock.cgf"),
	}, recompiledPaths(calls))
	for _, c := range calls[1:] {
		assert.Equal(t, []string{"/refresh", "/vertexindexformat=u16"}, c.Flags)
	}

	assert.Equal(t, Report{
		DocumentPath: h.doc,
		Serialized:   true,
		Recompiled:   3,
	}, report)
	assert.Equal(t, 4, h.rec.Waits())

	data, err := os.ReadFile(h.doc)
	require.NoError(t, err)
	assert.Equal(t, "<COLLADA/>", string(data))
}

func TestConvertOptionalFlags(t *testing.T) {
	h := newHarness(t, config.Options{DoMaterials: true, SuppressPrintouts: true}, true)
	h.conv.cfg.ExtraArgs = []string{"/p=PC"}

	h.convert(testNodes[:1])

	calls := h.rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"/verbose", "/threads=processors", "/refresh", "/createmtl=1", "/p=PC"}, calls[0].Flags)
	assert.Equal(t, []string{"/refresh", "/vertexindexformat=u16", "/quiet", "/p=PC"}, calls[1].Flags)
	assert.Equal(t,
		[]string{"/refresh", "/vertexindexformat=u16", "/quiet", "/p=PC", filepath.Join(filepath.Dir(h.doc), "CryExportNode_door.cga")},
		calls[1].Args(),
		"target comes last",
	)
}

func TestConvertDisableRC(t *testing.T) {
	h := newHarness(t, config.Options{DisableRC: true, SaveDAE: true}, true)

	report := h.convert(testNodes)

	assert.Empty(t, h.rec.Calls())
	assert.True(t, report.Serialized)
	assert.True(t, exists(h.doc))
}

func TestConvertCleansUp(t *testing.T) {
	h := newHarness(t, config.Options{}, true)
	h.rec.Exit = func(c rctest.Call) error {
		if c.Targets[0] == h.doc {
			return os.WriteFile(h.doc+DoneSuffix, nil, 0o644)
		}
		return nil
	}

	report := h.convert(testNodes)

	assert.True(t, report.Serialized)
	assert.True(t, report.CleanedUp)
	assert.False(t, exists(h.doc))
	assert.False(t, exists(h.doc+DoneSuffix))
}

func TestConvertPrimaryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, config.Options{MakeLayer: true}, true)
	h.rec.Exit = func(c rctest.Call) error {
		if c.Targets[0] == h.doc {
			return rctest.Failed(c, 1)
		}
		return nil
	}

	report := h.convert(testNodes)

	require.Error(t, report.PrimaryErr)
	assert.ErrorIs(t, report.PrimaryErr, rc.ErrCompilerExecutionFailed)
	assert.Equal(t, 3, report.Recompiled, "recompile pass still runs")
	assert.True(t, exists(report.LayerPath), "layer is still written")
	assert.True(t, report.CleanedUp)
	assert.Equal(t, 1, h.logs.FilterMessage("scene compilation failed").Len())
}

func TestConvertUnavailableCompiler(t *testing.T) {
	h := newHarness(t, config.Options{}, true)
	h.rec.Start = func(c rctest.Call) error { return rctest.Unavailable(c) }

	report := h.convert(testNodes)

	assert.ErrorIs(t, report.PrimaryErr, rc.ErrCompilerUnavailable)
	assert.Equal(t, 3, report.RecompileFailed)
	assert.Zero(t, report.Recompiled)
	assert.True(t, report.CleanedUp)
	assert.Equal(t, 3, h.logs.FilterMessage("recompile failed").Len())
}

func TestConvertWritesLayer(t *testing.T) {
	h := newHarness(t, config.Options{MakeLayer: true, DisableRC: true}, true)

	report := h.convert(testNodes)

	want := strings.TrimSuffix(h.doc, ".dae") + ".lyr"
	assert.Equal(t, want, report.LayerPath)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="rock.cgf"`)
	assert.Contains(t, string(data), `Pos="1, 2, 3"`)
	assert.Equal(t, 4, strings.Count(string(data), "<Object "))
	assert.False(t, exists(h.doc), "layer survives document cleanup")
}

func TestConvertDetachedRecompile(t *testing.T) {
	h := newHarness(t, config.Options{}, false)
	release := make(chan struct{})
	h.rec.Exit = func(c rctest.Call) error {
		if c.Targets[0] == h.doc {
			return nil
		}
		<-release
		if strings.HasSuffix(c.Targets[0], ".chr") {
			return rctest.Failed(c, 5)
		}
		return nil
	}

	report := h.convert(testNodes)

	assert.Equal(t, 3, report.Detached)
	assert.Zero(t, report.Recompiled)
	assert.Len(t, h.rec.Calls(), 4)
	assert.Equal(t, 1, h.rec.Waits(), "only the primary pass was joined")

	close(release)
	h.conv.WaitDetached()
	assert.Equal(t, 4, h.rec.Waits())
	assert.Equal(t, 1, h.logs.FilterMessage("background recompile failed").Len())
}

func TestConvertRecompileLimit(t *testing.T) {
	h := newHarness(t, config.Options{}, true)
	h.conv.limit = 1

	nodes := make([]export.Node, 6)
	for i := range nodes {
		nodes[i] = export.Node{Name: fmt.Sprintf("CryExportNode_n%d.cgf", i)}
	}
	report := h.convert(nodes)

	assert.Equal(t, 6, report.Recompiled)
	assert.Equal(t, 1, h.rec.MaxActive())
}

func TestConvertBadDocumentPath(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		h := newHarness(t, config.Options{}, true)
		h.conv.cfg.DocumentPath = "  "

		report := h.convert(testNodes)
		assert.False(t, report.Serialized)
		assert.Empty(t, h.rec.Calls())
	})

	t.Run("unwritable", func(t *testing.T) {
		h := newHarness(t, config.Options{}, true)
		require.NoError(t, os.MkdirAll(h.doc, 0o755)) // a directory where the file should go

		report := h.convert(testNodes)
		assert.False(t, report.Serialized)
		assert.Empty(t, h.rec.Calls())
		assert.Equal(t, 1, h.logs.FilterMessage("cannot write scene document").Len())
	})
}

func TestConvertSerializesOnDocument(t *testing.T) {
	h := newHarness(t, config.Options{DisableRC: true}, true)
	locks := workspace.NewLocks()
	h.conv.locks = locks

	release := locks.Acquire(h.doc)
	done := make(chan Report, 1)
	go func() { done <- h.convert(nil) }()

	select {
	case <-done:
		t.Fatal("conversion ran while the document path was locked")
	default:
	}
	release()
	assert.True(t, (<-done).Serialized)
}

func TestRecompileTargetsFiltersTypes(t *testing.T) {
	targets, rejected := recompileTargets("/out/scene.dae", []export.Node{
		{Name: "a.skin"},
		{Name: "b.i_caf"},
		{Name: "plain"},
		{Name: "c", Type: export.NodeTypeCHR},
		{Name: "d.cgf", Type: export.NodeTypeOther},
	})
	assert.Equal(t, []string{filepath.Join("/out", "a.skin"), filepath.Join("/out", "c")}, targets)
	assert.Empty(t, rejected)
}

func TestRecompileTargetsRejectsPaths(t *testing.T) {
	targets, rejected := recompileTargets("/out/scene.dae", []export.Node{
		{Name: "../escape.chr"},
		{Name: "sub/inner.cga"},
		{Name: `sub\inner.skin`},
		{Name: "..", Type: export.NodeTypeCHR},
		{Name: "", Type: export.NodeTypeCGA},
		{Name: "ok.chr"},
	})
	assert.Equal(t, []string{filepath.Join("/out", "ok.chr")}, targets)
	assert.Equal(t, []string{"../escape.chr", "sub/inner.cga", `sub\inner.skin`, "..", ""}, rejected)
}

func TestConvertSkipsUnsafeNodeNames(t *testing.T) {
	h := newHarness(t, config.Options{}, true)

	report := h.convert([]export.Node{
		{Name: "../../outside.chr"},
		{Name: "CryExportNode_hero.chr"},
	})

	calls := h.rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(h.doc), "CryExportNode_hero.chr")}, recompiledPaths(calls))
	assert.Equal(t, 1, report.Recompiled)
	assert.Equal(t, 1, report.RecompileFailed)

	skipped := h.logs.FilterMessage("recompile skipped, node name is not a file name").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "../../outside.chr", skipped[0].ContextMap()["node"])
}

func TestDocumentPath(t *testing.T) {
	_, err := documentPath("")
	assert.Error(t, err)

	abs, err := documentPath("scene.dae")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
}
