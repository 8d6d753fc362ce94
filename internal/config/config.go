package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AlfredBerg/scrapecrawl/internal/fetch"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrNoPlan          = errors.New("no selector plan specified: use --plan")
	ErrNoTarget        = errors.New("no target specified: provide a url, --target or urls on stdin")
	ErrInvalidAttempts = errors.New("invalid attempts: must be positive")
	ErrInvalidLimit    = errors.New("invalid limit: must be non-negative")
	ErrInvalidFormat   = errors.New("invalid format: must be json or yaml")
)

type Config struct {
	Targets     string            `mapstructure:"target"`
	Plan        string            `mapstructure:"plan"`
	Limit       int               `mapstructure:"limit"`
	Dynamic     bool              `mapstructure:"dynamic"`
	Attempts    int               `mapstructure:"attempts"`
	Concurrency int               `mapstructure:"concurrency"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Stable      time.Duration     `mapstructure:"stable"`
	Headers     map[string]string `mapstructure:"header"`
	UserAgent   string            `mapstructure:"user-agent"`
	Output      string            `mapstructure:"output"`
	Format      string            `mapstructure:"format"`
	Database    string            `mapstructure:"db"`
	LogLevel    string            `mapstructure:"log-level"`
}

// BindFlags defines every configuration flag on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.StringP("target", "t", "", "A file containing the urls to crawl, one per line. If empty and no url argument is given stdin is used.")
	fs.StringP("plan", "p", "", "A yaml file with the selector for the seeds and the queue of selectors for the following depths.")
	fs.IntP("limit", "l", 0, "The maximum number of links followed from each page. 0 follows all of them.")
	fs.BoolP("dynamic", "d", false, "Render every page in a headless browser before extracting.")
	fs.Int("attempts", fetch.DefaultAttempts, "The number of attempts made for each fetch.")
	fs.IntP("concurrency", "c", 2, "The number of browsers used for dynamic rendering.")
	fs.Duration("timeout", 0, "The maximum time spent on a single fetch attempt. 0 means no limit.")
	fs.Duration("stable", time.Second, "How long a rendered page must stay unchanged before it is extracted.")
	fs.StringToStringP("header", "H", nil, "A header sent with every request, as key=value. Can be specified multiple times.")
	fs.String("user-agent", fetch.DefaultUserAgent, "The User-Agent of static requests.")
	fs.StringP("output", "o", "-", "The file the result tree is written to. - writes to stdout.")
	fs.StringP("format", "f", "json", "The output format, json or yaml.")
	fs.String("db", "", "A sqlite database the result tree is also stored in.")
	fs.String("log-level", "info", "The log level: debug, info, warn or error.")
}

// FromViper decodes the merged flag, environment and file configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Plan == "" {
		return ErrNoPlan
	}
	if c.Attempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.Limit < 0 {
		return ErrInvalidLimit
	}
	switch c.Format {
	case "json", "yaml":
	default:
		return ErrInvalidFormat
	}
	return nil
}

// ReadTargets reads one url per line. Blank lines and lines starting with #
// are skipped.
func ReadTargets(r io.Reader) ([]string, error) {
	var targets []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		target := strings.TrimSpace(sc.Text())
		if target == "" || strings.HasPrefix(target, "#") {
			continue
		}
		targets = append(targets, target)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTarget
	}
	return targets, nil
}
