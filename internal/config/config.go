// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Env wins over file, file wins over
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Solver holds the default parameters applied to solve requests that leave
// fields unset.
type Solver struct {
	Alpha        float64 `yaml:"alpha"`     // < 0 means pick by greedy grid scan
	BetaStart    float64 `yaml:"betaStart"` // biased-draw schedule
	BetaMin      float64 `yaml:"betaMin"`
	BetaStep     float64 `yaml:"betaStep"`
	WindowSize   int     `yaml:"windowSize"`
	Iterations   int     `yaml:"iterations"`
	Workers      int     `yaml:"workers"`
	TimeBudgetMs int     `yaml:"timeBudgetMs"`
	Trials       int     `yaml:"trials"`
	NoiseLevel   float64 `yaml:"noiseLevel"`
}

type Config struct {
	Addr         string  `yaml:"addr"`
	DatabaseURL  string  `yaml:"databaseUrl"`
	RedisURL     string  `yaml:"redisUrl"`
	InstanceDir  string  `yaml:"instanceDir"`
	RateLimitRPS float64 `yaml:"rateLimitRps"`
	Solver       Solver  `yaml:"solver"`
}

// Default returns the configuration used when no file and no env are given.
func Default() Config {
	return Config{
		Addr:         ":8080",
		RateLimitRPS: 50,
		Solver: Solver{
			Alpha:      -1,
			BetaStart:  0.99,
			BetaMin:    0.10,
			BetaStep:   0.05,
			WindowSize: 30,
			Iterations: 1000,
			Trials:     0,
			NoiseLevel: 0.05,
		},
	}
}

// Load reads path (if non-empty and present) and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("INSTANCE_DIR"); v != "" {
		cfg.InstanceDir = v
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("SOLVER_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Solver.Iterations = n
		}
	}
	if v := os.Getenv("SOLVER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Solver.Workers = n
		}
	}
	if v := os.Getenv("SOLVER_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Solver.Trials = n
		}
	}
	if v := os.Getenv("SOLVER_NOISE_LEVEL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Solver.NoiseLevel = f
		}
	}
}

func (c Config) validate() error {
	if c.Solver.Alpha > 1 {
		return fmt.Errorf("config: solver alpha must be <= 1, got %v", c.Solver.Alpha)
	}
	if c.Solver.BetaStart <= 0 || c.Solver.BetaStart >= 1 {
		return fmt.Errorf("config: solver betaStart must be in (0,1), got %v", c.Solver.BetaStart)
	}
	if c.Solver.BetaMin <= 0 || c.Solver.BetaMin >= 1 {
		return fmt.Errorf("config: solver betaMin must be in (0,1), got %v", c.Solver.BetaMin)
	}
	if c.Solver.NoiseLevel < 0 {
		return fmt.Errorf("config: solver noiseLevel must be >= 0, got %v", c.Solver.NoiseLevel)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config: rateLimitRps must be >= 0, got %v", c.RateLimitRPS)
	}
	return nil
}
