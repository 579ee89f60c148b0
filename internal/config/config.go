package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string

	Store store.Options
	Seed  store.Seed

	ObserverID      string
	ObserverSecret  string
	StrictTeamScope bool
	ClaimRules      []engine.ClaimRule

	PollInterval time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	StaticDir    string
	CORSOrigins  []string
}

// Load reads the given env files, .env when none are named, and then the
// process environment. Missing env files are ignored; variables already set
// in the environment win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		ObserverID:     getEnv("OBSERVER_ID", "Referee"),
		ObserverSecret: getEnv("OBSERVER_SECRET", "yi94an713"),
		StaticDir:      getEnv("STATIC_DIR", ""),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		Store: store.Options{
			Driver:        store.Driver(getEnv("STORE_DRIVER", string(store.DriverFile))),
			DataDir:       getEnv("DATA_DIR", "./data"),
			PostgresDSN:   getEnv("POSTGRES_DSN", ""),
			MongoURI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
			MongoDatabase: getEnv("MONGO_DATABASE", "ark_project"),
			RedisAddrs:    splitList(getEnv("REDIS_ADDRS", "127.0.0.1:6379")),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
		},
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":" + getEnv("PORT", "3000")
	}

	var err error
	cfg.StrictTeamScope, err = getBool("STRICT_TEAM_SCOPE", true)
	collect(err)
	cfg.PollInterval, err = getDuration("POLL_INTERVAL", 5*time.Second)
	collect(err)
	cfg.PingInterval, err = getDuration("WS_PING_INTERVAL", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = getDuration("WS_WRITE_TIMEOUT", 5*time.Second)
	collect(err)

	cfg.Seed.Duration, err = getDuration("GAME_DURATION", 75*time.Minute)
	collect(err)
	cfg.Seed.ProgressSlots, err = getInt("PROGRESS_SLOTS", 5)
	collect(err)
	cfg.Seed.Teams, err = parseTeams(getEnv("TEAMS", "A:a71b,B:a2b8"))
	collect(err)

	if path := getEnv("CLAIM_RULES_FILE", ""); path != "" {
		cfg.ClaimRules, err = LoadClaimRules(path)
		if err != nil {
			collect(fmt.Errorf("CLAIM_RULES_FILE: %w", err))
		}
	}

	collect(cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Seed.Duration <= 0 {
		errs = append(errs, errors.New("GAME_DURATION must be positive"))
	}
	if c.Seed.ProgressSlots < 0 {
		errs = append(errs, errors.New("PROGRESS_SLOTS must not be negative"))
	}
	if c.Store.Driver == store.DriverPostgres && c.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("STORE_DRIVER=postgres requires POSTGRES_DSN"))
	}
	for _, t := range c.Seed.Teams {
		if t.ID == c.ObserverID {
			errs = append(errs, fmt.Errorf("TEAMS: team id %q collides with OBSERVER_ID", t.ID))
		}
	}
	return errors.Join(errs...)
}

type claimFile struct {
	Claims []engine.ClaimRule `yaml:"claims"`
}

// LoadClaimRules reads paired-field contracts from a YAML file.
func LoadClaimRules(path string) ([]engine.ClaimRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read claim rules: %w", err)
	}
	var f claimFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse claim rules %s: %w", path, err)
	}
	if _, err := engine.NewClaimTable(f.Claims); err != nil {
		return nil, fmt.Errorf("claim rules %s: %w", path, err)
	}
	return f.Claims, nil
}

// parseTeams reads "id:password" pairs separated by commas.
func parseTeams(s string) ([]store.TeamSeed, error) {
	var out []store.TeamSeed
	seen := make(map[string]bool)
	for _, item := range splitList(s) {
		id, pw, ok := strings.Cut(item, ":")
		id, pw = strings.TrimSpace(id), strings.TrimSpace(pw)
		if !ok || id == "" || pw == "" {
			return nil, fmt.Errorf("TEAMS: %q is not id:password", item)
		}
		if seen[id] {
			return nil, fmt.Errorf("TEAMS: duplicate team %q", id)
		}
		seen[id] = true
		out = append(out, store.TeamSeed{ID: id, Password: pw})
	}
	if len(out) == 0 {
		return nil, errors.New("TEAMS: at least one team is required")
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
