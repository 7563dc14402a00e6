package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/cryexport/internal/config"
	"github.com/Faultbox/cryexport/internal/dispatch"
	"github.com/Faultbox/cryexport/internal/export"
	"github.com/Faultbox/cryexport/internal/layer"
	"github.com/Faultbox/cryexport/internal/logger"
	"github.com/Faultbox/cryexport/internal/scene"
	"github.com/Faultbox/cryexport/internal/texture"
)

// newDispatcher builds a dispatcher for cfg that prints each finished task.
func newDispatcher(cfg *config.Config) (*dispatch.Dispatcher, *int, error) {
	conv, err := cfg.Conversion()
	if err != nil {
		return nil, nil, err
	}

	failures := new(int)
	printOutcome := func(o dispatch.Outcome) {
		switch {
		case o.Panic != nil:
			fmt.Fprintf(os.Stderr, "%s conversion crashed: %v\n", o.Kind, o.Panic)
			*failures++
		case o.Texture != nil:
			r := o.Texture
			fmt.Printf("Textures: %d compiled, %d failed, %d skipped, %d kept, %d discarded\n",
				r.Compiled, r.Failed, r.Skipped, r.Promoted, r.Discarded)
			*failures += r.Failed
		case o.Scene != nil:
			r := o.Scene
			fmt.Printf("Scene:    %s\n", r.DocumentPath)
			if !r.Serialized {
				fmt.Println("          not written")
				*failures++
				return
			}
			if r.PrimaryErr != nil {
				fmt.Printf("          compile failed: %v\n", r.PrimaryErr)
				*failures++
			}
			fmt.Printf("          %d recompiled, %d failed, %d in background\n",
				r.Recompiled, r.RecompileFailed, r.Detached)
			*failures += r.RecompileFailed
			if r.LayerPath != "" {
				fmt.Printf("Layer:    %s\n", r.LayerPath)
			}
		}
	}

	d := dispatch.New(conv, logger.Log, dispatch.WithObserver(printOutcome))
	return d, failures, nil
}

func cmdTextures(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cryrc textures <image>...")
		return 1
	}
	if !cfg.TexturesDirConfigured() {
		fmt.Fprintln(os.Stderr, "Error: textures directory is not set (textures.dir or -textures-dir)")
		return 1
	}

	d, failures, err := newDispatcher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	images := make([]texture.Image, len(args))
	for i, path := range args {
		images[i] = texture.NewFileImage(path)
	}

	if task := d.DispatchTexture(ctx, images); task == nil {
		fmt.Println("Texture conversion is disabled (options.do_textures)")
		return 0
	}
	d.Wait()

	if *failures > 0 {
		return 2
	}
	return 0
}

func cmdScene(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cryrc scene <document> [manifest]")
		return 1
	}

	body, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var nodes []export.Node
	if len(args) > 1 {
		nodes, err = export.LoadManifest(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if samePath(args[0], cfg.Export.Filepath) && !cfg.Options.SaveDAE {
		// Compiling the export document in place must not delete the input.
		logger.Log.Info("input is the export document, keeping it", zap.String("path", args[0]))
		cfg.Options.SaveDAE = true
	}

	d, failures, err := newDispatcher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	d.DispatchScene(ctx, scene.Document{Body: body, Nodes: nodes})
	d.Wait()

	if !cfg.Compiler.WaitForRecompile {
		fmt.Println("Waiting for background recompiles...")
		d.WaitDetached()
	}

	if *failures > 0 {
		return 2
	}
	return 0
}

func cmdLayer(cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cryrc layer <manifest> [output.lyr|-]")
		return 1
	}

	nodes, err := export.LoadManifest(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	doc := layer.Build(nodes)

	out := strings.TrimSuffix(args[0], filepath.Ext(args[0])) + layer.Extension
	if len(args) > 1 {
		out = args[1]
	}
	if out == "-" {
		if _, err := doc.WriteTo(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if err := doc.WriteFile(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Log.Info("layer file written", zap.String("path", out), zap.Int("objects", doc.ObjectCount()))
	fmt.Printf("Layer:    %s (%d objects)\n", out, doc.ObjectCount())
	return 0
}

func cmdCheck(cfg *config.Config) int {
	status := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "NOT CONFIGURED"
	}

	fmt.Printf("Compiler:         %-16s %s\n", status(cfg.RCConfigured()), cfg.Compiler.RCPath)
	fmt.Printf("Texture compiler: %-16s %s\n", status(cfg.TextureRCConfigured()), cfg.EffectiveTextureRCPath())
	fmt.Printf("Textures dir:     %-16s %s\n", status(cfg.TexturesDirConfigured()), cfg.Textures.Dir)
	fmt.Printf("Export document:  %s\n", cfg.Export.Filepath)

	if !cfg.Configured() {
		return 1
	}
	return 0
}

func cmdConfig(cfg *config.Config, args []string) int {
	if len(args) > 0 && args[0] == "save" {
		path, err := cfg.Save()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Saved %s\n", path)
		return 0
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	os.Stdout.Write(data)
	return 0
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
