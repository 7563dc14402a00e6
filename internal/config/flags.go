package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagRC          = flag.String("rc", "", "Path to the resource compiler")
	flagTextureRC   = flag.String("texture-rc", "", "Path to the texture resource compiler")
	flagTexturesDir = flag.String("textures-dir", "", "Compiled texture output directory")
	flagNoRC        = flag.Bool("no-rc", false, "Serialize the scene without running the compiler")
	flagLayer       = flag.Bool("layer", false, "Write a .lyr layer file next to the scene")
	flagSaveDAE     = flag.Bool("save-dae", false, "Keep the serialized scene document")
	flagSaveTIFFs   = flag.Bool("save-tiffs", false, "Keep intermediate TIFF files in the textures directory")
	flagQuiet       = flag.Bool("quiet", false, "Pass /quiet to the compiler")
	flagMaterials   = flag.Bool("materials", false, "Ask the compiler to create material files")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments left after ParseFlags.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagRC != "" {
		cfg.Compiler.RCPath = *flagRC
	}
	if *flagTextureRC != "" {
		cfg.Compiler.TextureRCPath = *flagTextureRC
	}
	if *flagTexturesDir != "" {
		cfg.Textures.Dir = *flagTexturesDir
	}
	if *flagNoRC {
		cfg.Options.DisableRC = true
	}
	if *flagLayer {
		cfg.Options.MakeLayer = true
	}
	if *flagSaveDAE {
		cfg.Options.SaveDAE = true
	}
	if *flagSaveTIFFs {
		cfg.Options.SaveTIFFs = true
	}
	if *flagQuiet {
		cfg.Options.SuppressPrintouts = true
	}
	if *flagMaterials {
		cfg.Options.DoMaterials = true
	}
}
