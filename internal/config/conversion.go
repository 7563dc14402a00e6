package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"

	"github.com/Faultbox/cryexport/pkg/encoding"
)

// Conversion is the read-only settings snapshot handed to one conversion run.
// Converters never see the live Config, so editing it mid-run is harmless.
type Conversion struct {
	RCPath           string
	TextureRCPath    string
	TexturesDir      string
	DocumentPath     string
	ExtraArgs        []string
	Timeout          time.Duration
	WaitForRecompile bool
	OutputEncoding   string
	Options          Options
}

// Conversion resolves paths and compiler arguments into a snapshot.
func (c *Config) Conversion() (Conversion, error) {
	rcPath, err := expandPath(c.Compiler.RCPath)
	if err != nil {
		return Conversion{}, fmt.Errorf("rc_path: %w", err)
	}
	textureRCPath, err := expandPath(c.EffectiveTextureRCPath())
	if err != nil {
		return Conversion{}, fmt.Errorf("texture_rc_path: %w", err)
	}
	texturesDir, err := expandPath(c.Textures.Dir)
	if err != nil {
		return Conversion{}, fmt.Errorf("textures.dir: %w", err)
	}
	documentPath, err := expandPath(c.Export.Filepath)
	if err != nil {
		return Conversion{}, fmt.Errorf("export.filepath: %w", err)
	}

	var extraArgs []string
	if strings.TrimSpace(c.Compiler.ExtraArgs) != "" {
		extraArgs, err = shellwords.Parse(c.Compiler.ExtraArgs)
		if err != nil {
			return Conversion{}, fmt.Errorf("extra_args %q: %w", c.Compiler.ExtraArgs, err)
		}
	}

	if _, err := encoding.Lookup(c.Compiler.OutputEncoding); err != nil {
		return Conversion{}, fmt.Errorf("output_encoding: %w", err)
	}

	return Conversion{
		RCPath:           rcPath,
		TextureRCPath:    textureRCPath,
		TexturesDir:      texturesDir,
		DocumentPath:     documentPath,
		ExtraArgs:        extraArgs,
		Timeout:          c.Compiler.Timeout,
		WaitForRecompile: c.Compiler.WaitForRecompile,
		OutputEncoding:   strings.TrimSpace(c.Compiler.OutputEncoding),
		Options:          c.Options,
	}, nil
}

// Clone returns a deep copy sharing no slices with c.
func (c Conversion) Clone() Conversion {
	var out Conversion
	if err := copier.CopyWithOption(&out, &c, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which a same-type copy cannot hit
		panic(fmt.Sprintf("config: cloning conversion snapshot: %v", err))
	}
	return out
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	return homedir.Expand(path)
}
