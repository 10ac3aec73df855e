// Package sfpmconfig provides SFPM's layered YAML configuration: package
// defaults, an optional discovered workspace file, and an explicit
// --config override, merged in that order.
package sfpmconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level SFPM config.
	WorkspaceDirName = ".sfpm"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the sfpm CLI and runtime.
type Config struct {
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	HotSwap  HotSwapConfig  `yaml:"hot_swap"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RuntimeConfig configures the tiered interpreter's VM.
type RuntimeConfig struct {
	// StackSize is the VM's operand stack depth.
	StackSize int `yaml:"stack_size"`
	// StartMode selects "cached" or "uncached" dispatch at startup.
	StartMode string `yaml:"start_mode"`
	// OptimizeMatcher is loaded from YAML but not read by the CLI or the
	// dispatcher: the uncached path always runs the matcher without the
	// descending-specificity sort and early exit.
	OptimizeMatcher bool `yaml:"optimize_matcher"`
	// Quiet suppresses the opcode handlers' diagnostic trace lines.
	Quiet bool `yaml:"quiet"`
}

// SnapshotConfig configures where interpreter snapshots live.
type SnapshotConfig struct {
	// Dir is where snapshot files are written and read from.
	Dir string `yaml:"dir"`
	// Description, when non-empty, is stamped into every snapshot this
	// process saves.
	Description string `yaml:"description"`
}

// HotSwapConfig configures the fsnotify-driven opcode-patch watcher. The
// watcher is a CLI-only convenience, not part of the core SFPM contract.
type HotSwapConfig struct {
	Enabled bool `yaml:"enabled"`
	// WatchDir is scanned for opcode patch files.
	WatchDir string `yaml:"watch_dir"`
	// DebounceMs coalesces bursts of filesystem events for the same file.
	DebounceMs int `yaml:"debounce_ms"`
}

// LoggingConfig configures the stdlib logger the CLI redirects to a file.
type LoggingConfig struct {
	LogFile string `yaml:"log_file"`
	Verbose bool   `yaml:"verbose"`
}

// DefaultConfig provides reasonable defaults for running sfpm locally.
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeConfig{
			StackSize:       256,
			StartMode:       "cached",
			OptimizeMatcher: false,
			Quiet:           false,
		},
		Snapshot: SnapshotConfig{
			Dir:         "snapshots",
			Description: "",
		},
		HotSwap: HotSwapConfig{
			Enabled:    false,
			WatchDir:   "hotswap",
			DebounceMs: 200,
		},
		Logging: LoggingConfig{
			LogFile: "sfpm.log",
			Verbose: false,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .sfpm/config.yaml
// file. Returns the workspace root directory (parent of .sfpm/) or empty
// string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .sfpm/config.yaml <- explicit --config
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .sfpm/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "snapshots"),
		filepath.Join(wsDir, "hotswap"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# sfpm project-level configuration
# Values here override defaults but are overridden by --config.

# runtime:
#   stack_size: 512
#   start_mode: uncached

# hot_swap:
#   enabled: true
#   watch_dir: ".sfpm/hotswap"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (snapshots, logs) - do not version control\nsnapshots/\n*.log\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Snapshot.Dir = resolve(cfg.Snapshot.Dir)
	cfg.HotSwap.WatchDir = resolve(cfg.HotSwap.WatchDir)
	cfg.Logging.LogFile = resolve(cfg.Logging.LogFile)
	return cfg
}

// Validate ensures required fields are internally consistent so the
// runtime can start deterministically.
func (c *Config) Validate() error {
	if c.Runtime.StackSize <= 0 {
		return errors.New("runtime.stack_size must be positive")
	}
	switch c.Runtime.StartMode {
	case "cached", "uncached":
	default:
		return fmt.Errorf("runtime.start_mode must be \"cached\" or \"uncached\", got %q", c.Runtime.StartMode)
	}
	if c.HotSwap.Enabled && c.HotSwap.WatchDir == "" {
		return errors.New("hot_swap.watch_dir is required when hot_swap.enabled is true")
	}
	return nil
}
