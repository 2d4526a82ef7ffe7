package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

// Config is everything the process needs to run, merged from (in order of
// precedence, lowest first) defaults, a YAML config file, REVAULT_* env vars
// and command-line flags.
type Config struct {
	VaultDir    string        `koanf:"vault" validate:"required"`
	GitURL      string        `koanf:"git_url"`
	DataPath    string        `koanf:"data" validate:"required"`
	ArchivePath string        `koanf:"archive"`
	Listen      string        `koanf:"listen" validate:"required,hostname_port"`
	Debounce    time.Duration `koanf:"debounce" validate:"min=0"`
	MaxBackups  int           `koanf:"max_backups" validate:"min=0,max=20"`
	LogLevel    string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string        `koanf:"log_format" validate:"oneof=text json"`
}

func loadConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("revault", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.String("vault", "", "vault directory holding the notes")
	fs.String("git-url", "", "git remote to clone or pull the vault from")
	fs.String("data", "revault.json", "path to the scheduling data file")
	fs.String("archive", "revault.db", "path to the review archive database (empty disables it)")
	fs.String("listen", "127.0.0.1:8372", "HTTP listen address")
	fs.Duration("debounce", 2*time.Second, "delay before dirty state is flushed to disk")
	fs.Int("max-backups", 3, "rotated backups of the data file to keep")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	k := koanf.New(".")
	if *configPath != "" {
		if err := k.Load(file.Provider(*configPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", *configPath, err)
		}
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "REVAULT_",
		TransformFunc: func(key, value string) (string, any) {
			return normalizeKey(strings.TrimPrefix(key, "REVAULT_")), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *flag.Flag) (string, any) {
		return normalizeKey(f.Name), posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// normalizeKey maps REVAULT_LOG_LEVEL and --log-level onto the same koanf key.
func normalizeKey(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case c == '-':
			c = '_'
		}
		out[i] = c
	}
	return string(out)
}

func exitUsage(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}
