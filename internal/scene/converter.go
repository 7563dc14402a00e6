// Package scene converts a serialized scene document into compiled engine
// assets: one primary compiler pass over the document, a recompile pass per
// exported node, an optional layer file and cleanup of intermediate files.
package scene

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/cryexport/internal/config"
	"github.com/Faultbox/cryexport/internal/export"
	"github.com/Faultbox/cryexport/internal/layer"
	"github.com/Faultbox/cryexport/internal/logger"
	"github.com/Faultbox/cryexport/internal/rc"
	"github.com/Faultbox/cryexport/internal/workspace"
)

// DoneSuffix is appended to the document path by the compiler for its
// completion marker.
const DoneSuffix = ".rcdone"

// Document is a serialized interchange document and the export nodes it
// describes.
type Document struct {
	Body  []byte
	Nodes []export.Node
}

// Report summarises one scene run.
type Report struct {
	DocumentPath    string
	Serialized      bool
	PrimaryErr      error
	Recompiled      int // recompile invocations that exited cleanly
	RecompileFailed int
	Detached        int // recompile invocations left running in the background
	LayerPath       string
	CleanedUp       bool
}

// Converter runs the scene pipeline for one settings snapshot.
type Converter struct {
	cfg     config.Conversion
	invoker rc.Invoker
	locks   *workspace.Locks
	log     *zap.Logger
	layers  *layer.Builder

	// limit bounds concurrent recompile processes when they are joined.
	limit int

	detached sync.WaitGroup
}

// NewConverter creates a scene converter for one settings snapshot.
func NewConverter(cfg config.Conversion, invoker rc.Invoker, locks *workspace.Locks, log *zap.Logger) *Converter {
	log = logger.OrNop(log)
	if locks == nil {
		locks = workspace.NewLocks()
	}
	return &Converter{
		cfg:     cfg,
		invoker: invoker,
		locks:   locks,
		log:     log,
		layers:  &layer.Builder{},
		limit:   runtime.NumCPU(),
	}
}

// Convert writes the document and drives the compiler over it. Failures are
// logged and recorded in the report, never returned.
func (c *Converter) Convert(ctx context.Context, doc Document) Report {
	var report Report

	path, err := documentPath(c.cfg.DocumentPath)
	if err != nil {
		c.log.Error("invalid document path", zap.String("path", c.cfg.DocumentPath), zap.Error(err))
		return report
	}
	report.DocumentPath = path
	log := c.log.With(zap.String("document", path))

	release := c.locks.Acquire(path)
	defer release()

	if err := workspace.WriteFile(path, doc.Body); err != nil {
		log.Error("cannot write scene document", zap.Error(err))
		return report
	}
	report.Serialized = true
	log.Info("scene document written", zap.Int("bytes", len(doc.Body)), zap.Int("nodes", len(doc.Nodes)))

	if c.cfg.Options.DisableRC {
		log.Info("compiler disabled, skipping conversion")
	} else {
		report.PrimaryErr = c.compileDocument(ctx, path)
		if report.PrimaryErr != nil {
			log.Error("scene compilation failed", zap.Error(report.PrimaryErr))
		}
		c.recompile(ctx, path, doc.Nodes, &report)
	}

	if c.cfg.Options.MakeLayer {
		lyr := strings.TrimSuffix(path, filepath.Ext(path)) + layer.Extension
		if err := c.layers.Build(doc.Nodes).WriteFile(lyr); err != nil {
			log.Error("cannot write layer file", zap.String("layer", lyr), zap.Error(err))
		} else {
			report.LayerPath = lyr
			log.Info("layer file written", zap.String("layer", lyr))
		}
	}

	if !c.cfg.Options.SaveDAE {
		err := multierr.Combine(
			workspace.Remove(path),
			workspace.Remove(path+DoneSuffix),
		)
		if err != nil {
			log.Warn("cannot remove intermediate scene files", zap.Error(err))
		} else {
			report.CleanedUp = true
		}
	}

	log.Info("scene conversion finished",
		zap.Bool("primary_ok", report.PrimaryErr == nil && !c.cfg.Options.DisableRC),
		zap.Int("recompiled", report.Recompiled),
		zap.Int("recompile_failed", report.RecompileFailed),
		zap.Int("detached", report.Detached),
	)
	return report
}

// WaitDetached blocks until every background recompile process started by
// this converter has been reaped.
func (c *Converter) WaitDetached() {
	c.detached.Wait()
}

func (c *Converter) compileDocument(ctx context.Context, path string) error {
	flags := []string{"/verbose", "/threads=processors", "/refresh"}
	if c.cfg.Options.DoMaterials {
		flags = append(flags, "/createmtl=1")
	}
	flags = append(flags, c.cfg.ExtraArgs...)
	return rc.Run(ctx, c.invoker, c.cfg.RCPath, rc.Single(path), flags)
}

func (c *Converter) recompileFlags() []string {
	flags := []string{"/refresh", "/vertexindexformat=u16"}
	if c.cfg.Options.SuppressPrintouts {
		flags = append(flags, "/quiet")
	}
	return append(flags, c.cfg.ExtraArgs...)
}

// recompileTargets returns the per-node outputs for recompilable nodes.
// Each output sits next to the document and is named after its node. Nodes
// whose names would leave the document's directory are returned in rejected.
func recompileTargets(path string, nodes []export.Node) (targets, rejected []string) {
	dir := filepath.Dir(path)
	for _, node := range nodes {
		typ := node.Type
		if typ == "" {
			typ = export.NodeTypeFromName(node.Name)
		}
		if !typ.Recompilable() {
			continue
		}
		if !plainFileName(node.Name) {
			rejected = append(rejected, node.Name)
			continue
		}
		targets = append(targets, filepath.Join(dir, node.Name))
	}
	return targets, rejected
}

// plainFileName reports whether name is a single path element.
func plainFileName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.VolumeName(name) == ""
}

func (c *Converter) recompile(ctx context.Context, path string, nodes []export.Node, report *Report) {
	targets, rejected := recompileTargets(path, nodes)
	for _, name := range rejected {
		report.RecompileFailed++
		c.log.Error("recompile skipped, node name is not a file name", zap.String("node", name))
	}
	if len(targets) == 0 {
		return
	}
	flags := c.recompileFlags()

	if !c.cfg.WaitForRecompile {
		for _, target := range targets {
			c.detach(ctx, target, flags, report)
		}
		return
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(c.limit, 1))
	for _, target := range targets {
		g.Go(func() error {
			err := rc.Run(ctx, c.invoker, c.cfg.RCPath, rc.Single(target), flags)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.RecompileFailed++
				c.log.Error("recompile failed", zap.String("target", target), zap.Error(err))
				return nil
			}
			report.Recompiled++
			return nil
		})
	}
	_ = g.Wait()
}

// detach starts a recompile process and reaps it in the background.
func (c *Converter) detach(ctx context.Context, target string, flags []string, report *Report) {
	proc, err := c.invoker.Invoke(ctx, c.cfg.RCPath, rc.Single(target), flags)
	if err != nil {
		report.RecompileFailed++
		c.log.Error("recompile failed", zap.String("target", target), zap.Error(err))
		return
	}
	report.Detached++

	c.detached.Add(1)
	go func() {
		defer c.detached.Done()
		if err := proc.Wait(); err != nil {
			c.log.Error("background recompile failed", zap.String("target", target), zap.Error(err))
			return
		}
		c.log.Debug("background recompile finished", zap.String("target", target))
	}()
}

func documentPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("document path is not configured")
	}
	return filepath.Abs(path)
}
