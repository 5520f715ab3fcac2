// command webpic
package main

// SPDX-License-Identifier: GPL-3.0-only

// This is the main entry point for webpic, which downloads media and
// metadata from image sites given page URLs.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"
	"webpic"

	"dario.cat/mergo"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"github.com/titanous/json5"
)

const (
	defaultOutputDir = "dl"

	envPixivToken   = "WEBPIC_PIXIV_TOKEN"
	envTwitterToken = "WEBPIC_TWITTER_TOKEN"
)

var (
	// Build information, set via -ldflags at build time.
	buildGitCommitHash = "unknown"
	buildTimestamp     = "unknown"
)

// Config holds the application configuration parsed from CLI flags and the
// optional config file.  Flags win over the file.
type Config struct {
	Debug        bool     `json:"debug"`        // Enable debug logging
	Color        bool     `json:"color"`        // Colorize log output
	InfoOnly     bool     `json:"infoOnly"`     // Print item details instead of downloading
	OutputDir    string   `json:"outputDir"`    // Output directory for downloads
	Limit        int      `json:"limit"`        // Children per parent URL, 0 for all
	CookieFile   string   `json:"cookieFile"`   // Path to cookies.txt file
	MinDelay     string   `json:"minDelay"`     // Lower bound of the pause between requests
	MaxDelay     string   `json:"maxDelay"`     // Upper bound of the pause between requests
	PixivToken   string   `json:"pixivToken"`   // pixiv app API access token
	TwitterToken string   `json:"twitterToken"` // twitter API bearer token
	ConfigFile   string   `json:"-"`            // Path to a json5 config file
	URLs         []string `json:"-"`            // Page URLs to fetch
}

func main() {
	config := ParseFlags()
	config, err := LoadConfig(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := CreateLogger(os.Stderr, config.Debug, config.Color)
	client := webpic.NewHTTPClient(logger)
	if config.CookieFile != "" {
		err := client.LoadCookies(config.CookieFile)
		if err != nil {
			logger.Error("Failed to load cookies", "file", config.CookieFile, "error", err)
			os.Exit(1)
		}
	}

	session, err := NewSession(logger, client, config)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting webpic",
		"commit", buildGitCommitHash,
		"buildDate", buildTimestamp)
	logger.Debug("Configuration", "outputDir", config.OutputDir, "limit", config.Limit,
		"minDelay", config.MinDelay, "maxDelay", config.MaxDelay, "urls", config.URLs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	scraper := NewScraper(logger, session, os.Stdout, config.OutputDir, config.Limit, config.InfoOnly)
	err = scraper.Run(ctx, config.URLs)
	stop()
	if err != nil {
		logger.Error("Application error", "error", err)
		os.Exit(1)
	}

	logger.Info("Done!")
}

// ParseFlags parses command line flags and returns a Config.  The remaining
// arguments are the URLs to fetch.
//
// Returns:
//   - Config: A populated configuration struct with values from CLI flags
func ParseFlags() Config {
	config := Config{}

	pflag.BoolVarP(&config.Debug, "debug", "d", false, "Enable debug logging")
	pflag.BoolVar(&config.Color, "color", false, "Colorize log output")
	pflag.BoolVarP(&config.InfoOnly, "info-only", "i", false, "Print item details instead of downloading")
	pflag.StringVarP(&config.OutputDir, "output", "o", "", "Output directory for downloads (default \"dl\")")
	pflag.IntVarP(&config.Limit, "limit", "n", 0, "Maximum children to fetch per parent URL, 0 for all")
	pflag.StringVarP(&config.CookieFile, "cookies", "c", "", "Path to cookies.txt file")
	pflag.StringVar(&config.MinDelay, "min-delay", "", "Minimum pause between requests, e.g. 1.5s")
	pflag.StringVar(&config.MaxDelay, "max-delay", "", "Maximum pause between requests, e.g. 3s")
	pflag.StringVar(&config.PixivToken, "pixiv-token", "", "pixiv app API access token (or $"+envPixivToken+")")
	pflag.StringVar(&config.TwitterToken, "twitter-token", "", "twitter API bearer token (or $"+envTwitterToken+")")
	pflag.StringVarP(&config.ConfigFile, "config", "f", "", "Path to a json5 config file")

	pflag.Parse()

	config.URLs = pflag.Args()
	if len(config.URLs) == 0 {
		fmt.Fprintf(os.Stderr,
			"usage: %s [-di] [-o <output_dir>] [-n <limit>] [-c <cookies_file>] [-f <config_file>] <url>...\n\n",
			os.Args[0])
		pflag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nAt least one URL must be specified")
		os.Exit(1)
	}

	return config
}

// LoadConfig fills the fields not set on the command line, first from the
// config file, then from the environment, then from built-in defaults.
//
// Parameters:
//   - config: Configuration from ParseFlags
//
// Returns:
//   - Config: The merged configuration
//   - error: Any error reading or parsing the config file
func LoadConfig(config Config) (Config, error) {
	if config.ConfigFile != "" {
		//#nosec G304: filename is intentionally from user input
		data, err := os.ReadFile(config.ConfigFile)
		if err != nil {
			return config, fmt.Errorf("failed to read config file: %w", err)
		}
		var fromFile Config
		err = json5.Unmarshal(data, &fromFile)
		if err != nil {
			return config, fmt.Errorf("failed to parse config file %s: %w", config.ConfigFile, err)
		}
		err = mergo.Merge(&config, fromFile)
		if err != nil {
			return config, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	fromEnv := Config{
		PixivToken:   os.Getenv(envPixivToken),
		TwitterToken: os.Getenv(envTwitterToken),
	}
	err := mergo.Merge(&config, fromEnv)
	if err != nil {
		return config, fmt.Errorf("failed to merge environment: %w", err)
	}

	err = mergo.Merge(&config, Config{OutputDir: defaultOutputDir})
	if err != nil {
		return config, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return config, nil
}

// NewSession builds a webpic.Session from the configuration.
//
// Parameters:
//   - logger: Logger instance
//   - client: HTTP client for unauthenticated fetches
//   - config: The merged configuration
//
// Returns:
//   - *webpic.Session: A session with API clients and delays applied
//   - error: Any error parsing the delay bounds
func NewSession(logger *slog.Logger, client webpic.Client, config Config) (*webpic.Session, error) {
	session := webpic.NewSession(logger, client)

	if config.MinDelay != "" || config.MaxDelay != "" {
		minDelay, err := parseDelay(config.MinDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid min-delay: %w", err)
		}
		maxDelay, err := parseDelay(config.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid max-delay: %w", err)
		}
		if maxDelay == 0 {
			maxDelay = minDelay
		}
		if maxDelay < minDelay {
			return nil, errors.New("max-delay is below min-delay")
		}
		session.SetDelay(minDelay, maxDelay)
	}

	if config.PixivToken != "" {
		session.SetPixivAPI(webpic.NewPixivAppClient(logger, config.PixivToken))
	}
	if config.TwitterToken != "" {
		session.SetTwitterAPI(webpic.NewTwitterRESTClient(logger, config.TwitterToken))
	}
	return session, nil
}

func parseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative delay %s", s)
	}
	return d, nil
}

// CreateLogger creates a new slog.Logger instance with the specified output
// writer and log level based on the debug flag.
//
// Parameters:
//   - w: The io.Writer where log output will be written
//   - debug: If true, sets log level to Debug; otherwise sets to Info
//   - color: If true, uses a colorized human-oriented handler
//
// Returns:
//   - *slog.Logger: A configured logger instance
func CreateLogger(w io.Writer, debug bool, color bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	if color {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
