// Package config loads refbatch configuration from the environment and an
// optional refbatch.yaml file. The resulting Config is read once at process
// start and treated as immutable for the duration of a run.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all refbatch configuration.
type Config struct {
	Repo      RepoConfig      `mapstructure:"repo"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
	Models    ModelsConfig    `mapstructure:"models"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Preflight PreflightConfig `mapstructure:"preflight"`
}

// RepoConfig holds target repository settings.
type RepoConfig struct {
	Root      string `mapstructure:"root"`
	ReportDir string `mapstructure:"report_dir"`
}

// PromptsConfig holds prompt discovery settings.
type PromptsConfig struct {
	Dir      string `mapstructure:"dir"`
	Manifest string `mapstructure:"manifest"`
}

// ModelsConfig holds model identifiers for both roles.
type ModelsConfig struct {
	Impl   string `mapstructure:"impl"`
	Review string `mapstructure:"review"`

	// Aliases maps short model names to full model IDs.
	Aliases map[string]string `mapstructure:"aliases"`

	// ContextLimits maps full model IDs to approximate context sizes in
	// tokens, used for prompt-size warnings before invocation.
	ContextLimits map[string]int `mapstructure:"context_limits"`

	// LocalModels lists model IDs that get LocalPrefix prepended when the
	// opencode backend is used.
	LocalModels []string `mapstructure:"local_models"`
	LocalPrefix string   `mapstructure:"local_prefix"`
}

// TokensConfig holds the four gate token strings.
type TokensConfig struct {
	TestsPass  string `mapstructure:"tests_pass"`
	TestsFail  string `mapstructure:"tests_fail"`
	ReviewPass string `mapstructure:"review_pass"`
	ReviewFail string `mapstructure:"review_fail"`
}

// LoopConfig holds iteration and retry settings.
type LoopConfig struct {
	MaxIters      int  `mapstructure:"max_iters"`
	RetryMax      int  `mapstructure:"retry_max"`
	RetrySleepSec int  `mapstructure:"retry_sleep_sec"`
	DryRun        bool `mapstructure:"dry_run"`
	PromptIndex   int  `mapstructure:"prompt_index"`
}

// AgentConfig holds external coding agent invocation settings.
type AgentConfig struct {
	// Backend selects the command shape: "cline" (prompt on stdin) or
	// "opencode" (prompt file passed by path).
	Backend string `mapstructure:"backend"`

	// Command is the agent executable, optionally with leading base args.
	Command []string `mapstructure:"command"`

	// CommandTimeoutSec bounds a single agent invocation. Zero disables the
	// timeout entirely; a hung agent then blocks the batch indefinitely.
	// This is a documented limitation, not a hidden contract.
	CommandTimeoutSec int `mapstructure:"command_timeout_sec"`
}

// PreflightConfig holds model reachability check settings.
type PreflightConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TimeoutSec int  `mapstructure:"timeout_sec"`
}

// envBindings maps viper keys to the environment variables that override them.
var envBindings = map[string]string{
	"models.impl":          "MODEL_IMPL",
	"models.review":        "MODEL_REVIEW",
	"tokens.tests_pass":    "TESTS_PASS_TOKEN",
	"tokens.tests_fail":    "TESTS_FAIL_TOKEN",
	"tokens.review_pass":   "REVIEW_PASS_TOKEN",
	"tokens.review_fail":   "REVIEW_FAIL_TOKEN",
	"loop.max_iters":       "MAX_ITERS",
	"loop.retry_max":       "RETRY_MAX",
	"loop.retry_sleep_sec": "RETRY_SLEEP_SEC",
	"loop.dry_run":         "DRY_RUN",
	"loop.prompt_index":    "PROMPT_INDEX",
}

// Load reads configuration for the given working directory. Environment
// variables take precedence over refbatch.yaml, which takes precedence over
// defaults. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	v.SetConfigName("refbatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath reads configuration from a specific file path. The file must
// exist.
func LoadFromPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	v := viper.New()
	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate checks the loaded configuration for values that would make a run
// meaningless or ambiguous.
func (c *Config) Validate() error {
	if c.Loop.MaxIters < 1 {
		return fmt.Errorf("loop.max_iters must be >= 1, got %d", c.Loop.MaxIters)
	}
	if c.Loop.RetryMax < 1 {
		return fmt.Errorf("loop.retry_max must be >= 1, got %d", c.Loop.RetryMax)
	}
	if c.Loop.RetrySleepSec < 0 {
		return fmt.Errorf("loop.retry_sleep_sec must be >= 0, got %d", c.Loop.RetrySleepSec)
	}
	if c.Loop.PromptIndex < 0 {
		return fmt.Errorf("loop.prompt_index must be >= 0, got %d", c.Loop.PromptIndex)
	}
	for name, tok := range map[string]string{
		"tokens.tests_pass":  c.Tokens.TestsPass,
		"tokens.tests_fail":  c.Tokens.TestsFail,
		"tokens.review_pass": c.Tokens.ReviewPass,
		"tokens.review_fail": c.Tokens.ReviewFail,
	} {
		if tok == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if c.Tokens.TestsPass == c.Tokens.TestsFail {
		return fmt.Errorf("tests pass and fail tokens must differ")
	}
	if c.Tokens.ReviewPass == c.Tokens.ReviewFail {
		return fmt.Errorf("review pass and fail tokens must differ")
	}
	switch c.Agent.Backend {
	case "cline", "opencode":
	default:
		return fmt.Errorf("agent.backend must be cline or opencode, got %q", c.Agent.Backend)
	}
	if len(c.Agent.Command) == 0 {
		return fmt.Errorf("agent.command must not be empty")
	}
	return nil
}
