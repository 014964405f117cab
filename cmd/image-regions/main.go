package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/labstack/gommon/log"

	imageregions "github.com/menta2k/image-regions"
	"github.com/menta2k/image-regions/internal/config"
	"github.com/menta2k/image-regions/internal/utils"
	"github.com/menta2k/image-regions/pkg/analyzer"
	"github.com/menta2k/image-regions/pkg/filter"
)

// report is printed once per input image
type report struct {
	Input      string        `json:"input"`
	Result     filter.Result `json:"result"`
	Output     string        `json:"output,omitempty"`
	OutputSize string        `json:"output_size,omitempty"`
	Overlay    string        `json:"overlay,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code. Reports
// go to stdout, logs to stderr.
func run(args []string, stdout, stderr io.Writer) int {
	var in, outDir, ext, cfgPath, saveConfig string
	var width, height, quality int
	var dpr float64
	var lossless, debug, overlay bool

	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&in, "in", "", "input image path, URL or directory (jpg/png/gif/webp)")
	fs.IntVar(&width, "w", 0, "requested width, 0 derives it from the metadata")
	fs.IntVar(&height, "h", 0, "requested height, 0 derives it from the metadata")
	fs.Float64Var(&dpr, "dpr", 0, "display resolution factor")
	fs.StringVar(&outDir, "out", "", "write processed images to this directory")
	fs.StringVar(&ext, "ext", "", "output format: jpg|png|webp")
	fs.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	fs.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	fs.BoolVar(&debug, "debug", false, "log every resolver stage")
	fs.BoolVar(&overlay, "overlay", false, "also write a debug overlay per image (needs an output directory)")
	fs.StringVar(&cfgPath, "config", "", "configuration file (json or yaml), defaults to "+config.GetConfigPath())
	fs.StringVar(&saveConfig, "save-config", "", "write the effective configuration to this file and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := log.New("image-regions")
	logger.SetOutput(stderr)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error(err)
		return 1
	}

	// Flags given on the command line override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.OutputDir = outDir
		case "ext":
			cfg.Output.DefaultFormat = ext
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "debug":
			if debug {
				cfg.Log.Level = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Error(err)
		return 1
	}
	logger.SetLevel(cfg.Log.Lvl())

	if saveConfig != "" {
		if err := cfg.SaveToFile(saveConfig); err != nil {
			logger.Error(err)
			return 1
		}
		logger.Infof("configuration written to %s", saveConfig)
		return 0
	}

	if in == "" {
		fmt.Fprintf(stderr, "usage: %s -in image.jpg|URL|dir [-w 400] [-h 300] [-dpr 2] [-out outdir] [-ext jpg|png|webp] [-overlay]\n", fs.Name())
		return 2
	}

	ir := imageregions.NewWithConfig(analyzer.DefaultConfig(), cfg.Filter, logger)

	inputs := []string{in}
	if !utils.IsURL(in) && utils.DirExists(in) {
		files, err := utils.ListImageFiles(in)
		if err != nil {
			logger.Error(err)
			return 1
		}
		inputs = files
	}

	req := filter.Request{Width: width, Height: height, DPR: dpr}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, source := range inputs {
		r := process(ir, cfg, logger, source, req, overlay)
		if r.Error != "" {
			failed++
			logger.Warnf("%s: %s", source, r.Error)
		}
		if err := enc.Encode(r); err != nil {
			logger.Error(err)
			return 1
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// process resolves one image and, when an output directory is configured,
// writes the rendition and optionally its overlay
func process(ir *imageregions.ImageRegions, cfg *config.Config, logger *log.Logger, source string, req filter.Request, overlay bool) report {
	r := report{Input: source}

	data, err := ir.Fetch(source)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	res, err := ir.Resolve(data, req)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Result = res

	out := cfg.Output
	if out.OutputDir == "" {
		return r
	}
	if err := utils.EnsureDir(out.OutputDir); err != nil {
		r.Error = err.Error()
		return r
	}

	img, err := ir.Render(data, res)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	encoded, err := ir.Encode(img, out.DefaultFormat, out.Quality, out.Lossless)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Output = utils.GenerateOutputFilename(source, out.OutputDir, out.Prefix, out.Suffix, out.DefaultFormat, res.Width, res.Height)
	if err := os.WriteFile(r.Output, encoded, 0o644); err != nil {
		r.Error = err.Error()
		return r
	}
	r.OutputSize = utils.FormatFileSize(int64(len(encoded)))
	logger.Infof("wrote %s (%s)", r.Output, r.OutputSize)

	if overlay {
		dbg, err := ir.Overlay(data, res)
		if err != nil {
			r.Error = fmt.Sprintf("overlay: %v", err)
			return r
		}
		png, err := ir.Encode(dbg, "png", out.Quality, false)
		if err != nil {
			r.Error = fmt.Sprintf("overlay: %v", err)
			return r
		}
		r.Overlay = utils.GenerateOutputFilename(source, out.OutputDir, out.Prefix, out.Suffix+"_debug", "png", res.Width, res.Height)
		if err := os.WriteFile(r.Overlay, png, 0o644); err != nil {
			r.Error = err.Error()
			return r
		}
		logger.Infof("wrote %s", r.Overlay)
	}
	return r
}
