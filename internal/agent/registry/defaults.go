package registry

// LoadDefaults registers the known ACP-compatible agent kinds (grounded on
// the original registry's known_agents() list): Claude Code, Gemini CLI,
// Codex CLI, OpenCode, and GitHub Copilot.
func (r *Registry) LoadDefaults() {
	for _, d := range DefaultAgents() {
		r.Register(d)
	}
}

// DefaultAgents returns the built-in catalog.
func DefaultAgents() []AgentDescriptor {
	prefixes := homeInstallPrefixes

	return []AgentDescriptor{
		AgentDescriptor{
			ID:            "claude",
			DisplayName:   "Claude Code",
			Executable:    "claude-code-acp",
			RequiredEnv:   []string{"ANTHROPIC_API_KEY"},
			ConfigDirName: ".claude",
			Models: []ModelDescriptor{
				{ID: "claude-sonnet-4-5-20250929", DisplayName: "Sonnet 4.5"},
				{ID: "claude-opus-4-5-20251101", DisplayName: "Opus 4.5"},
				{ID: "claude-haiku-4-5-20251001", DisplayName: "Haiku 4.5"},
			},
			DefaultModelID:      "claude-sonnet-4-5-20250929",
			ModelEnvVar:         "ANTHROPIC_MODEL",
			ModelCLIFlag:        "--model",
			SupportsLoadSession: true,
		}.WithInstallPrefixes(prefixes...),

		AgentDescriptor{
			ID:            "gemini",
			DisplayName:   "Gemini CLI",
			Executable:    "gemini",
			Args:          []string{"--experimental-acp"},
			ConfigDirName: ".gemini",
			Models: []ModelDescriptor{
				{ID: "gemini-2.5-pro", DisplayName: "2.5 Pro"},
				{ID: "gemini-2.5-flash", DisplayName: "2.5 Flash"},
				{ID: "gemini-2.5-flash-lite", DisplayName: "2.5 Flash-Lite"},
				{ID: "gemini-3-flash-preview", DisplayName: "3 Flash Preview"},
			},
			DefaultModelID:      "gemini-2.5-pro",
			ModelEnvVar:         "GEMINI_MODEL",
			ModelCLIFlag:        "--model",
			SupportsLoadSession: true,
		}.WithInstallPrefixes(prefixes...),

		AgentDescriptor{
			ID:            "codex",
			DisplayName:   "Codex CLI",
			Executable:    "codex-acp",
			RequiredEnv:   []string{"OPENAI_API_KEY"},
			ConfigDirName: ".codex",
			Models: []ModelDescriptor{
				{ID: "gpt-5.2-codex", DisplayName: "GPT-5.2 Codex"},
				{ID: "codex-1", DisplayName: "Codex 1 (o3)"},
				{ID: "codex-mini-latest", DisplayName: "Codex Mini"},
				{ID: "o3-pro", DisplayName: "o3 Pro"},
			},
			DefaultModelID:      "codex-1",
			ModelEnvVar:         "OPENAI_MODEL",
			ModelCLIFlag:        "--model",
			SupportsLoadSession: false,
		}.WithInstallPrefixes(prefixes...),

		AgentDescriptor{
			ID:            "opencode",
			DisplayName:   "OpenCode",
			Executable:    "opencode",
			Args:          []string{"acp"},
			ConfigDirName: ".opencode",
			Models: []ModelDescriptor{
				{ID: "default", DisplayName: "Default"},
			},
			DefaultModelID:      "default",
			SupportsLoadSession: false,
		}.WithInstallPrefixes(prefixes...),

		AgentDescriptor{
			ID:                  "copilot",
			DisplayName:         "GitHub Copilot",
			Executable:          "copilot",
			Args:                []string{"--acp"},
			ConfigDirName:       ".copilot",
			SupportsLoadSession: false,
			OutOfBandAuth:       true,
		}.WithInstallPrefixes(prefixes...),
	}
}
