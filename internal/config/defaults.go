package config

import "github.com/spf13/viper"

// setDefaults sets all default values for configuration.
func setDefaults(v *viper.Viper) {
	// Repo defaults
	v.SetDefault("repo.root", ".")
	v.SetDefault("repo.report_dir", "doc/refactoring_reports")

	// Prompt defaults
	v.SetDefault("prompts.dir", "doc/refactoring_prompts")
	v.SetDefault("prompts.manifest", "prompts.yaml")

	// Model defaults
	v.SetDefault("models.impl", "devstral")
	v.SetDefault("models.review", "glm-4.7")
	v.SetDefault("models.aliases", map[string]string{
		"devstral": "devstral-2-123b-instruct-2512",
		"glm-4.7":  "glm-4.7-awq",
	})
	v.SetDefault("models.context_limits", map[string]int{
		"devstral-2-123b-instruct-2512": 262144,
		"glm-4.7-awq":                   128000,
	})
	v.SetDefault("models.local_models", []string{
		"devstral-2-123b-instruct-2512",
		"glm-4.7-awq",
	})
	v.SetDefault("models.local_prefix", "litellm-local/")

	// Gate token defaults
	v.SetDefault("tokens.tests_pass", "TESTS_PASS")
	v.SetDefault("tokens.tests_fail", "TESTS_FAIL")
	v.SetDefault("tokens.review_pass", "REVIEW_PASS")
	v.SetDefault("tokens.review_fail", "REVIEW_FAIL")

	// Loop defaults
	v.SetDefault("loop.max_iters", 3)
	v.SetDefault("loop.retry_max", 2)
	v.SetDefault("loop.retry_sleep_sec", 5)
	v.SetDefault("loop.dry_run", false)
	v.SetDefault("loop.prompt_index", 0)

	// Agent defaults
	v.SetDefault("agent.backend", "cline")
	v.SetDefault("agent.command", []string{"cline"})
	v.SetDefault("agent.command_timeout_sec", 0)

	// Preflight defaults
	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.timeout_sec", 180)
}
