// Package config handles exporter configuration loading and management.
package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds all exporter settings.
type Config struct {
	Compiler CompilerConfig `yaml:"compiler"`
	Textures TexturesConfig `yaml:"textures"`
	Export   ExportConfig   `yaml:"export"`
	Options  Options        `yaml:"options"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CompilerConfig locates the resource compiler and tunes its invocations.
type CompilerConfig struct {
	RCPath           string        `yaml:"rc_path"`
	TextureRCPath    string        `yaml:"texture_rc_path"` // Falls back to rc_path
	ExtraArgs        string        `yaml:"extra_args"`      // Shell-quoted, appended after the fixed flags
	Timeout          time.Duration `yaml:"timeout"`         // Per invocation, 0 = wait forever
	WaitForRecompile bool          `yaml:"wait_for_recompile"`
	OutputEncoding   string        `yaml:"output_encoding"` // IANA charset of compiler output, e.g. IBM437
}

// TexturesConfig holds the compiled texture output location.
type TexturesConfig struct {
	Dir string `yaml:"dir"`
}

// ExportConfig holds the serialized interchange document location.
type ExportConfig struct {
	Filepath string `yaml:"filepath"`
}

// Options are the boolean feature flags of one conversion run.
type Options struct {
	DoTextures        bool `yaml:"do_textures"`
	DoMaterials       bool `yaml:"do_materials"`
	DisableRC         bool `yaml:"disable_rc"`
	MakeLayer         bool `yaml:"make_layer"`
	SaveDAE           bool `yaml:"save_dae"`
	SaveTIFFs         bool `yaml:"save_tiffs"`
	SuppressPrintouts bool `yaml:"suppress_printouts"`
	ShowTextureDialog bool `yaml:"show_texture_dialog"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			WaitForRecompile: true,
		},
		Export: ExportConfig{
			Filepath: "export.dae",
		},
		Options: Options{
			DoTextures: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// EffectiveTextureRCPath returns the compiler used for textures.
func (c *Config) EffectiveTextureRCPath() string {
	if c.Compiler.TextureRCPath == "" {
		return c.Compiler.RCPath
	}
	return c.Compiler.TextureRCPath
}

// RCConfigured reports whether rc_path points at an rc executable.
func (c *Config) RCConfigured() bool {
	return isRCExecutable(c.Compiler.RCPath)
}

// TextureRCConfigured reports whether texture_rc_path points at an rc executable.
func (c *Config) TextureRCConfigured() bool {
	return isRCExecutable(c.Compiler.TextureRCPath)
}

// TexturesDirConfigured reports whether a texture output directory is set.
func (c *Config) TexturesDirConfigured() bool {
	return strings.TrimSpace(c.Textures.Dir) != ""
}

// Configured reports whether every compiler path and the texture directory are set.
func (c *Config) Configured() bool {
	return c.RCConfigured() && c.TextureRCConfigured() && c.TexturesDirConfigured()
}

// isRCExecutable accepts "rc" or "rc.exe" in any directory.
func isRCExecutable(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	base := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.EqualFold(base, "rc")
}
