// Package registry is the static catalog of known agent kinds (§4.1): pure
// data plus availability probing. It never spawns anything itself — the
// Worker Supervisor consumes AgentDescriptor to spawn and configure a child.
package registry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/ralphswarm/conductor/internal/logging"
)

// ModelDescriptor is one selectable model for an agent kind.
type ModelDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// AgentDescriptor is an immutable registry entry (§3 "AgentDescriptor").
type AgentDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	// Executable is either a bare command (resolved via PATH and the
	// conventional install-prefix probe) or an absolute path.
	Executable string   `json:"executable"`
	Args       []string `json:"args"`

	// RequiredEnv names environment variables that must be present in the
	// parent environment for the agent to run (e.g. API keys).
	RequiredEnv []string `json:"required_env"`

	// ConfigDirName is the per-agent directory name under
	// <home>/.<config-dir-name>/{skills,commands}/ and its project-local
	// mirror (§6 "Configuration directories").
	ConfigDirName string `json:"config_dir_name"`

	Models          []ModelDescriptor `json:"models"`
	DefaultModelID  string             `json:"default_model_id"`
	ModelEnvVar     string             `json:"model_env_var,omitempty"`
	ModelCLIFlag    string             `json:"model_cli_flag,omitempty"`

	// SupportsLoadSession mirrors the agent's advertised ACP capability so
	// the registry can pre-empt a resume attempt before ever spawning it
	// (scenario 4, §8).
	SupportsLoadSession bool `json:"supports_load_session"`

	// OutOfBandAuth marks agents whose authentication happens outside the
	// ACP `authenticate` call (e.g. an interactive browser login the user
	// completes once, manually). The Worker Supervisor skips the
	// programmatic authenticate step for these even when the agent offers
	// auth methods (§4.1, §4.6 step 3).
	OutOfBandAuth bool `json:"out_of_band_auth"`

	// installPrefixes are conventional per-OS install locations under the
	// user's home directory, checked after PATH (§4.1).
	installPrefixes []string
}

// resolvedPath is computed by Available() and cached on first probe.
type resolvedPath struct {
	path      string
	available bool
}

// Registry is the static, in-memory catalog of agent kinds.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]AgentDescriptor
	resolved map[string]resolvedPath
	log      *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		entries:  make(map[string]AgentDescriptor),
		resolved: make(map[string]resolvedPath),
		log:      log,
	}
}

// homeInstallPrefixes are the conventional per-user install locations
// checked after PATH, in order (registry.rs "common_paths").
var homeInstallPrefixes = []string{
	".opencode/bin",
	"go/bin",
	".local/bin",
	".cargo/bin",
	".copilot/bin",
}

// WithInstallPrefixes returns d with its home-prefix probe list set. Callers
// building descriptors should route through this instead of setting the
// unexported field directly.
func (d AgentDescriptor) WithInstallPrefixes(prefixes ...string) AgentDescriptor {
	d.installPrefixes = prefixes
	return d
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d AgentDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[d.ID] = d
	delete(r.resolved, d.ID)
}

// ListAll returns every registered descriptor, unfiltered by availability.
func (r *Registry) ListAll() []AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentDescriptor, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d)
	}
	return out
}

// ListAvailable returns only descriptors whose executable currently
// resolves on this host (§4.1).
func (r *Registry) ListAvailable() []AgentDescriptor {
	var out []AgentDescriptor
	for _, d := range r.ListAll() {
		if r.Available(d.ID) {
			out = append(out, d)
		}
	}
	return out
}

// Get returns a descriptor only if it is currently available.
func (r *Registry) Get(agentID string) (AgentDescriptor, bool) {
	d, ok := r.GetIncludingUnavailable(agentID)
	if !ok || !r.Available(agentID) {
		return AgentDescriptor{}, false
	}
	return d, true
}

// GetIncludingUnavailable returns a descriptor regardless of availability.
func (r *Registry) GetIncludingUnavailable(agentID string) (AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[agentID]
	return d, ok
}

// Available reports whether agentID's executable resolves via PATH or the
// conventional home-directory install prefixes. The result is cached after
// first probe; Register invalidates the cache for that id.
func (r *Registry) Available(agentID string) bool {
	r.mu.RLock()
	cached, ok := r.resolved[agentID]
	d, known := r.entries[agentID]
	r.mu.RUnlock()
	if ok {
		return cached.available
	}
	if !known {
		return false
	}

	path, ok := probeExecutable(d)
	r.mu.Lock()
	r.resolved[agentID] = resolvedPath{path: path, available: ok}
	r.mu.Unlock()
	return ok
}

// ResolvedExecutable returns the absolute path Available() found for
// agentID, falling back to the descriptor's bare command if no probe has
// run or none succeeded.
func (r *Registry) ResolvedExecutable(agentID string) string {
	r.Available(agentID) // ensure probed
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rp, ok := r.resolved[agentID]; ok && rp.available {
		return rp.path
	}
	if d, ok := r.entries[agentID]; ok {
		return d.Executable
	}
	return ""
}

// probeExecutable looks up the command on PATH first; the first match wins
// and its absolute path replaces the bare command (§4.1). Failing that, it
// walks the descriptor's conventional home-directory install prefixes.
func probeExecutable(d AgentDescriptor) (string, bool) {
	if filepath.IsAbs(d.Executable) {
		if info, err := os.Stat(d.Executable); err == nil && !info.IsDir() {
			return d.Executable, true
		}
	}

	if p, err := exec.LookPath(d.Executable); err == nil {
		return p, true
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	for _, prefix := range d.installPrefixes {
		candidate := filepath.Join(home, prefix, d.Executable)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// BuildEnv returns extraEnv merged onto the current process environment,
// plus the model-selection env var if the descriptor defines one (§4.1).
func (d AgentDescriptor) BuildEnv(modelID string, extraEnv map[string]string) []string {
	env := os.Environ()
	for k, v := range extraEnv {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if d.ModelEnvVar != "" && modelID != "" {
		env = append(env, fmt.Sprintf("%s=%s", d.ModelEnvVar, modelID))
	}
	return env
}

// BuildArgs appends the model CLI flag (and model id) to the descriptor's
// base argument vector when one is configured (§4.1). Both the env var and
// the CLI flag may be set simultaneously; the caller applies both.
func (d AgentDescriptor) BuildArgs(modelID string) []string {
	args := append([]string(nil), d.Args...)
	if d.ModelCLIFlag != "" && modelID != "" {
		args = append(args, d.ModelCLIFlag, modelID)
	}
	return args
}

// ResolveModel returns the model id to use: explicit if non-empty and
// known, else the descriptor's default.
func (d AgentDescriptor) ResolveModel(requested string) string {
	if requested != "" {
		for _, m := range d.Models {
			if m.ID == requested {
				return requested
			}
		}
	}
	return d.DefaultModelID
}
