// Package texture converts source images into compiled engine textures.
package texture

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/cryexport/internal/config"
	"github.com/Faultbox/cryexport/internal/logger"
	"github.com/Faultbox/cryexport/internal/rc"
	"github.com/Faultbox/cryexport/internal/workspace"
)

// tempDirPattern names the per-run directory holding TIFF copies.
const tempDirPattern = "cryblend-*"

// PendingTempFile is a TIFF copy written for the compiler and the place it
// ends up if it is kept.
type PendingTempFile struct {
	Temp string
	Dest string
}

// Report summarises one texture run.
type Report struct {
	Images    int // images handed in
	Compiled  int // compiler exited cleanly
	Failed    int // preparation or compilation failed
	Skipped   int // not attempted because the run was cancelled
	TempFiles int // distinct temporary copies created
	Promoted  int // temporary copies moved to the textures directory
	Discarded int // temporary copies deleted
}

// Converter compiles images one at a time with the texture compiler.
type Converter struct {
	cfg     config.Conversion
	invoker rc.Invoker
	locks   *workspace.Locks
	log     *zap.Logger

	mkdirTemp func(dir, pattern string) (string, error)
	move      func(src, dst string) error
	remove    func(path string) error
}

// NewConverter creates a texture converter for one settings snapshot.
func NewConverter(cfg config.Conversion, invoker rc.Invoker, locks *workspace.Locks, log *zap.Logger) *Converter {
	log = logger.OrNop(log)
	if locks == nil {
		locks = workspace.NewLocks()
	}
	return &Converter{
		cfg:       cfg,
		invoker:   invoker,
		locks:     locks,
		log:       log,
		mkdirTemp: os.MkdirTemp,
		move:      workspace.Move,
		remove:    workspace.Remove,
	}
}

// pendingEntry tracks one temporary copy through the run.
type pendingEntry struct {
	PendingTempFile
	compiled bool
}

// run is the state of one Convert call.
type run struct {
	tempDir string
	pending []*pendingEntry
	byTemp  map[string]*pendingEntry
}

// Convert compiles every image in order, waiting for each compiler process
// before starting the next. Failures are logged and never returned.
func (c *Converter) Convert(ctx context.Context, images []Image) Report {
	var report Report
	if !c.cfg.Options.DoTextures {
		c.log.Debug("texture conversion disabled")
		return report
	}
	report.Images = len(images)

	release := c.locks.Acquire(c.cfg.TexturesDir)
	defer release()

	c.log.Info("converting textures", zap.Int("count", len(images)), zap.String("targetroot", c.cfg.TexturesDir))

	r := &run{byTemp: make(map[string]*pendingEntry)}
	flags := c.flags()
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			report.Skipped = len(images) - i
			c.log.Warn("texture conversion cancelled", zap.Int("skipped", report.Skipped), zap.Error(err))
			break
		}

		path, entry, err := c.prepare(r, img)
		if err != nil {
			report.Failed++
			c.log.Error("cannot prepare image for compiler", zap.String("image", img.Filepath()), zap.Error(err))
			continue
		}

		if err := rc.Run(ctx, c.invoker, c.cfg.TextureRCPath, rc.Single(path), flags); err != nil {
			report.Failed++
			c.log.Error("texture compilation failed",
				zap.String("image", img.Filepath()),
				zap.String("target", path),
				zap.Error(err),
			)
			if entry != nil {
				entry.compiled = false
			}
			continue
		}

		report.Compiled++
		if entry != nil {
			entry.compiled = true
		}
		c.log.Debug("texture compiled", zap.String("image", img.Filepath()))
	}

	c.finish(r, &report)

	c.log.Info("texture conversion finished",
		zap.Int("compiled", report.Compiled),
		zap.Int("failed", report.Failed),
		zap.Int("promoted", report.Promoted),
		zap.Int("discarded", report.Discarded),
	)
	return report
}

// flags returns the texture compiler flags for this snapshot.
func (c *Converter) flags() []string {
	flags := []string{
		"/verbose",
		"/threads=cores",
		"/refresh",
		"/targetroot=" + c.cfg.TexturesDir,
	}
	if c.cfg.Options.SuppressPrintouts {
		flags = append(flags, "/quiet")
	}
	if c.cfg.Options.ShowTextureDialog {
		flags = append(flags, "/userdialog=1")
	}
	return append(flags, c.cfg.ExtraArgs...)
}

// prepare returns the path to hand to the compiler. Images that are not
// TIFF files on disk get a TIFF copy in the run's temp directory.
func (c *Converter) prepare(r *run, img Image) (string, *pendingEntry, error) {
	src := img.Filepath()
	if hasTIFFExtension(src) && img.Format() == FormatTIFF {
		return src, nil, nil
	}

	if r.tempDir == "" {
		dir, err := c.mkdirTemp("", tempDirPattern)
		if err != nil {
			return "", nil, err
		}
		r.tempDir = dir
	}

	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".tif"
	temp := filepath.Join(r.tempDir, name)

	entry, seen := r.byTemp[temp]
	if err := img.SaveAs(temp, FormatTIFF); err != nil {
		if seen {
			// The earlier copy may be clobbered; keep it out of the textures dir.
			entry.compiled = false
		} else {
			_ = c.remove(temp)
		}
		return "", nil, err
	}

	if !seen {
		entry = &pendingEntry{PendingTempFile: PendingTempFile{
			Temp: temp,
			Dest: filepath.Join(c.cfg.TexturesDir, name),
		}}
		r.byTemp[temp] = entry
		r.pending = append(r.pending, entry)
	}
	return temp, entry, nil
}

// finish promotes or discards every pending copy exactly once, then clears
// the pending set and removes the temp directory if it is empty.
func (c *Converter) finish(r *run, report *Report) {
	report.TempFiles = len(r.pending)

	var errs error
	for _, e := range r.pending {
		if c.cfg.Options.SaveTIFFs && e.compiled {
			c.log.Debug("moving temp image", zap.String("from", e.Temp), zap.String("to", e.Dest))
			err := c.move(e.Temp, e.Dest)
			if err == nil {
				report.Promoted++
				continue
			}
			errs = multierr.Append(errs, err)
		}

		report.Discarded++
		errs = multierr.Append(errs, c.remove(e.Temp))
	}
	r.pending = nil
	r.byTemp = nil

	if r.tempDir != "" {
		if removed, err := workspace.RemoveDirIfEmpty(r.tempDir); err != nil {
			errs = multierr.Append(errs, err)
		} else if !removed {
			c.log.Warn("temporary texture directory not empty, leaving it", zap.String("dir", r.tempDir))
		}
	}

	if errs != nil {
		c.log.Warn("texture cleanup incomplete", zap.Error(errs))
	}
}
