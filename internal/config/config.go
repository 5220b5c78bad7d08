package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cwinsights/internal/query"
	"cwinsights/internal/session"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func (t *Theme) String() string { return string(*t) }
func (t *Theme) Type() string   { return "theme" }

func (t *Theme) Set(s string) error {
	switch v := Theme(strings.ToLower(strings.TrimSpace(s))); v {
	case ThemeDark, ThemeLight:
		*t = v
		return nil
	}
	return fmt.Errorf("unknown theme %q: use dark or light", s)
}

type Backend string

const (
	BackendAWS  Backend = "aws"
	BackendFake Backend = "fake"
	BackendFile Backend = "file"
)

func (b *Backend) String() string { return string(*b) }
func (b *Backend) Type() string   { return "backend" }

func (b *Backend) Set(s string) error {
	switch v := Backend(strings.ToLower(strings.TrimSpace(s))); v {
	case BackendAWS, BackendFake, BackendFile:
		*b = v
		return nil
	case "cloudwatch":
		*b = BackendAWS
		return nil
	}
	return fmt.Errorf("unknown backend %q: use aws, fake or file", s)
}

const DefaultRegion = "eu-west-1"

type Config struct {
	Backend      Backend
	Region       string
	Profile      string
	LogGroup     string
	Query        string
	Range        string
	PollInterval time.Duration
	MaxRetries   int
	MaxRows      int
	CarryOver    string
	Follow       bool
	Endpoint     string
	Theme        Theme
	LogFile      string
	ConfigPath   string
	Offline      bool
	ShowVersion  bool

	OpenAIModel      string
	OpenAIBase       string
	OpenAITimeoutSec int

	// Only read from the config file.
	AccessKeyID     string
	SecretAccessKey string

	// Internal
	IsPipedStdin bool
}

// File is the optional YAML config. Keys left out keep their defaults.
type File struct {
	Backend          string `yaml:"backend"`
	Region           string `yaml:"region"`
	Profile          string `yaml:"profile"`
	LogGroup         string `yaml:"log_group"`
	Query            string `yaml:"query"`
	Range            string `yaml:"range"`
	PollInterval     string `yaml:"poll_interval"`
	MaxRetries       *int   `yaml:"max_retries"`
	MaxRows          *int   `yaml:"max_rows"`
	CarryOver        string `yaml:"carry_over"`
	Follow           *bool  `yaml:"follow"`
	Endpoint         string `yaml:"endpoint_url"`
	Theme            string `yaml:"theme"`
	LogFile          string `yaml:"log_file"`
	Offline          *bool  `yaml:"offline"`
	OpenAIModel      string `yaml:"openai_model"`
	OpenAIBase       string `yaml:"openai_base_url"`
	OpenAITimeoutSec *int   `yaml:"openai_timeout_sec"`
	AccessKeyID      string `yaml:"aws_access_key_id"`
	SecretAccessKey  string `yaml:"aws_secret_access_key"`
}

// values maps the keys that are set to their flag names.
func (f *File) values() map[string]string {
	m := map[string]string{}
	str := func(flag, v string) {
		if v != "" {
			m[flag] = v
		}
	}
	num := func(flag string, v *int) {
		if v != nil {
			m[flag] = strconv.Itoa(*v)
		}
	}
	boolean := func(flag string, v *bool) {
		if v != nil {
			m[flag] = strconv.FormatBool(*v)
		}
	}
	str("backend", f.Backend)
	str("region", f.Region)
	str("profile", f.Profile)
	str("log-group", f.LogGroup)
	str("query", f.Query)
	str("range", f.Range)
	str("poll-interval", f.PollInterval)
	num("max-retries", f.MaxRetries)
	num("max-rows", f.MaxRows)
	str("carry-over", f.CarryOver)
	boolean("follow", f.Follow)
	str("endpoint-url", f.Endpoint)
	str("theme", f.Theme)
	str("log-file", f.LogFile)
	boolean("offline", f.Offline)
	str("openai-model", f.OpenAIModel)
	str("openai-base-url", f.OpenAIBase)
	num("openai-timeout-sec", f.OpenAITimeoutSec)
	return m
}

// env lists the variables consulted for each flag; the first one set wins.
var env = map[string][]string{
	"backend":            {"CWINSIGHTS_BACKEND"},
	"region":             {"CWINSIGHTS_REGION", "AWS_REGION", "AWS_DEFAULT_REGION"},
	"profile":            {"CWINSIGHTS_PROFILE", "AWS_PROFILE"},
	"log-group":          {"CWINSIGHTS_LOG_GROUP"},
	"query":              {"CWINSIGHTS_QUERY"},
	"range":              {"CWINSIGHTS_RANGE"},
	"poll-interval":      {"CWINSIGHTS_POLL_INTERVAL"},
	"max-retries":        {"CWINSIGHTS_MAX_RETRIES"},
	"max-rows":           {"CWINSIGHTS_MAX_ROWS"},
	"carry-over":         {"CWINSIGHTS_CARRY_OVER"},
	"follow":             nil,
	"endpoint-url":       {"CWINSIGHTS_ENDPOINT_URL"},
	"theme":              {"CWINSIGHTS_THEME"},
	"log-file":           {"CWINSIGHTS_LOG_FILE"},
	"offline":            {"CWINSIGHTS_OFFLINE"},
	"openai-model":       {"CWINSIGHTS_OPENAI_MODEL"},
	"openai-base-url":    {"CWINSIGHTS_OPENAI_BASE_URL"},
	"openai-timeout-sec": {"CWINSIGHTS_OPENAI_TIMEOUT_SEC"},
}

// Bind registers the flags on fs with their built-in defaults. Call Resolve
// once fs is parsed.
func Bind(fs *pflag.FlagSet) *Config {
	cfg := &Config{Backend: BackendAWS, Theme: ThemeDark}
	fs.Var(&cfg.Backend, "backend", "query service: aws|fake|file")
	fs.StringVar(&cfg.Region, "region", DefaultRegion, "AWS region")
	fs.StringVar(&cfg.Profile, "profile", "", "AWS profile (default: AWS_PROFILE, then \"default\")")
	fs.StringVarP(&cfg.LogGroup, "log-group", "g", "", "log groups, comma separated (file backend: a path, or - for stdin)")
	fs.StringVarP(&cfg.Query, "query", "q", query.DefaultText, "initial query text")
	fs.StringVarP(&cfg.Range, "range", "r", query.DefaultRelative, "relative time range, e.g. \"15 minutes\" or 2h")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 500*time.Millisecond, "wait between result polls")
	fs.IntVar(&cfg.MaxRetries, "max-retries", 4, "consecutive transient poll failures tolerated")
	fs.IntVar(&cfg.MaxRows, "max-rows", 0, "keep at most N result rows per query (0=all)")
	fs.StringVar(&cfg.CarryOver, "carry-over", session.CarryFiltersAndColumns.String(), "filters and columns on resubmit: keep|reset")
	fs.BoolVarP(&cfg.Follow, "follow", "f", false, "file backend: keep reading appended lines")
	fs.StringVar(&cfg.Endpoint, "endpoint-url", "", "override the CloudWatch Logs endpoint")
	fs.Var(&cfg.Theme, "theme", "theme: dark|light")
	fs.StringVar(&cfg.LogFile, "log-file", "", "also write logs as JSON to this file")
	fs.StringVar(&cfg.ConfigPath, "config", "", "config file (default ~/.config/cwinsights/config.yaml)")
	fs.BoolVar(&cfg.Offline, "offline", false, "disable OpenAI query drafting")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", "gpt-5-mini", "OpenAI model override")
	fs.StringVar(&cfg.OpenAIBase, "openai-base-url", "", "OpenAI base URL override")
	fs.IntVar(&cfg.OpenAITimeoutSec, "openai-timeout-sec", 120, "OpenAI request timeout in seconds")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	return cfg
}

// Resolve fills every flag not given on the command line from the
// environment, then from the config file, and validates the result.
func (c *Config) Resolve(fs *pflag.FlagSet) error {
	file, err := c.loadFile()
	if err != nil {
		return err
	}
	var fromFile map[string]string
	if file != nil {
		fromFile = file.values()
		c.AccessKeyID = file.AccessKeyID
		c.SecretAccessKey = file.SecretAccessKey
	}
	for name, keys := range env {
		if fs.Changed(name) {
			continue
		}
		if v, key := firstEnv(keys...); v != "" {
			if err := fs.Set(name, v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			continue
		}
		if v, ok := fromFile[name]; ok {
			if err := fs.Set(name, v); err != nil {
				return fmt.Errorf("%s: %s: %w", c.ConfigPath, name, err)
			}
		}
	}

	c.IsPipedStdin = stdinPiped()
	// piped input with nothing else to read: query stdin
	if c.IsPipedStdin && !fs.Changed("backend") && c.LogGroup == "" && c.Backend == BackendAWS {
		c.Backend, c.LogGroup = BackendFile, "-"
	}
	return c.Validate()
}

func (c *Config) loadFile() (*File, error) {
	explicit := c.ConfigPath != ""
	if !explicit {
		c.ConfigPath = getenvDefault("CWINSIGHTS_CONFIG", DefaultPath())
		explicit = os.Getenv("CWINSIGHTS_CONFIG") != ""
	}
	if c.ConfigPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", c.ConfigPath, err)
	}
	return &f, nil
}

// DefaultPath is ~/.config/cwinsights/config.yaml, or empty without a home.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cwinsights", "config.yaml")
}

func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("--poll-interval must be at least 100ms, got %s", c.PollInterval))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("--max-retries must not be negative"))
	}
	if c.MaxRows < 0 {
		errs = append(errs, errors.New("--max-rows must not be negative"))
	}
	if _, err := session.ParseCarryOver(c.CarryOver); err != nil {
		errs = append(errs, fmt.Errorf("--carry-over: %w", err))
	}
	if _, r := query.FindRelative(c.Range); r.Span <= 0 {
		errs = append(errs, fmt.Errorf("--range: unknown range %q", c.Range))
	}
	if c.Backend == BackendAWS && c.Region == "" {
		errs = append(errs, errors.New("--region is required"))
	}
	if c.Backend == BackendFile && c.LogGroup == "" {
		errs = append(errs, errors.New("file backend needs --log-group <path> or piped input"))
	}
	if c.OpenAITimeoutSec <= 0 {
		errs = append(errs, errors.New("--openai-timeout-sec must be positive"))
	}
	return errors.Join(errs...)
}

// RelativeRange returns the configured relative range.
func (c *Config) RelativeRange() query.Relative {
	_, r := query.FindRelative(c.Range)
	return r
}

var stdinPiped = func() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice == 0
}

func getenvDefault(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func firstEnv(keys ...string) (string, string) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, k
		}
	}
	return "", ""
}

func (c *Config) OpenAIKey() string { return os.Getenv("OPENAI_API_KEY") }

func (c *Config) String() string {
	return fmt.Sprintf("backend=%s region=%s profile=%s groups=%q range=%q theme=%s offline=%v", c.Backend, c.Region, c.Profile, c.LogGroup, c.Range, c.Theme, c.Offline)
}
