package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

// flagValues holds raw flag values. Only flags the user actually set are
// applied on top of the other layers.
type flagValues struct {
	config        string
	port          int
	stagingDir    string
	maxBodyBytes  int64
	maxDimension  int
	renderTimeout time.Duration
	browserBin    string
	noSandbox     bool
	allowNetwork  bool
	logLevel      string
	logFormat     string
}

func newFlagSet() (*flag.FlagSet, *flagValues) {
	fv := &flagValues{}
	fs := flag.NewFlagSet("htmlpng", flag.ContinueOnError)

	fs.StringVarP(&fv.config, "config", "c", "", "YAML config file (env "+ConfigFileEnv+")")
	fs.IntVarP(&fv.port, "port", "p", 0, "HTTP listen port")
	fs.StringVar(&fv.stagingDir, "staging-dir", "", "directory for per-request asset staging")
	fs.Int64Var(&fv.maxBodyBytes, "max-body-bytes", 0, "maximum request body size in bytes")
	fs.IntVar(&fv.maxDimension, "max-dimension", 0, "maximum accepted width or height")
	fs.DurationVar(&fv.renderTimeout, "render-timeout", 0, "per-render page load timeout")
	fs.StringVar(&fv.browserBin, "browser-bin", "", "Chromium binary (default: auto)")
	fs.BoolVar(&fv.noSandbox, "no-sandbox", false, "disable the Chromium sandbox")
	fs.BoolVar(&fv.allowNetwork, "allow-network", false, "let pages fetch remote resources")
	fs.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&fv.logFormat, "log-format", "", "json or text")

	return fs, fv
}

func applyFlags(cfg *Config, fs *flag.FlagSet, fv *flagValues) {
	if fs.Changed("port") {
		cfg.Port = fv.port
	}
	if fs.Changed("staging-dir") {
		cfg.StagingDir = fv.stagingDir
	}
	if fs.Changed("max-body-bytes") {
		cfg.MaxBodyBytes = fv.maxBodyBytes
	}
	if fs.Changed("max-dimension") {
		cfg.MaxDimension = fv.maxDimension
	}
	if fs.Changed("render-timeout") {
		cfg.RenderTimeout = fv.renderTimeout
	}
	if fs.Changed("browser-bin") {
		cfg.BrowserBin = fv.browserBin
	}
	if fs.Changed("no-sandbox") {
		cfg.NoSandbox = fv.noSandbox
	}
	if fs.Changed("allow-network") {
		cfg.AllowNetwork = fv.allowNetwork
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = fv.logFormat
	}
}
