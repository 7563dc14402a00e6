// cryrc drives the CryEngine resource compiler over exported scenes and textures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/cryexport/internal/config"
	"github.com/Faultbox/cryexport/internal/logger"
)

func main() {
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := args[0]
	args = args[1:]

	var code int
	switch command {
	case "textures", "tex":
		code = cmdTextures(ctx, cfg, args)
	case "scene":
		code = cmdScene(ctx, cfg, args)
	case "layer", "lyr":
		code = cmdLayer(cfg, args)
	case "check":
		code = cmdCheck(cfg)
	case "config":
		code = cmdConfig(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		code = 1
	}

	if code != 0 {
		logger.Log.Debug("exiting", zap.String("command", command), zap.Int("code", code))
		logger.Sync()
		os.Exit(code)
	}
}

func printUsage() {
	fmt.Println(`cryrc - CryEngine resource compiler driver

Usage:
  cryrc [flags] <command> [arguments]

Commands:
  textures <image>...             Compile images into engine textures
  scene <document> [manifest]     Compile a serialized scene document
  layer <manifest> [output.lyr]   Write a level layer file for a manifest
  check                           Check the compiler and texture settings
  config [save]                   Print the effective config, or save it

Flags:
  -config <file>        Config file (default ./cryexport.yaml or user config dir)
  -rc <path>            Resource compiler executable
  -texture-rc <path>    Texture compiler executable (defaults to -rc)
  -textures-dir <dir>   Compiled texture output directory
  -no-rc                Write the scene document without compiling it
  -layer                Write a .lyr file next to the scene document
  -save-dae             Keep the scene document after compiling
  -save-tiffs           Keep intermediate TIFF copies
  -quiet                Pass /quiet to the compiler
  -materials            Ask the compiler to create materials
  -debug                Debug logging

Examples:
  cryrc -rc "C:/CryENGINE/Bin32/rc/rc.exe" check
  cryrc -textures-dir ./Game/Textures textures wood.png stone.tga
  cryrc -layer scene export.dae scene.yaml
  cryrc layer scene.yaml -`)
}
