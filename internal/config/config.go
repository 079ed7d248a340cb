package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/xsoft-dev/rsyncx/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".rsyncx")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.yaml")
)

const (
	stateDirName   = "state"
	deletedDirName = "deleted"
	logsDirName    = "logs"
	filterFileName = "rsync.filter"
)

// ServerProfile holds the connection parameters for one remote store.
// It is read-only to the sync core; the host chosen for a run is carried
// separately as a remote.ResolvedEndpoint, never written back here.
type ServerProfile struct {
	HostLocal  string `mapstructure:"host_local"`
	HostVPN    string `mapstructure:"host_vpn"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Identity   string `mapstructure:"identity"`
	RemoteBase string `mapstructure:"remote"`
}

// SyncGroup pairs one local directory with one subfolder of a server's remote base.
type SyncGroup struct {
	Name         string `mapstructure:"name"`
	Server       string `mapstructure:"server"`
	RemoteFolder string `mapstructure:"remote_folder"`
	LocalPath    string `mapstructure:"local_path"`
}

// SafeID returns a filesystem-safe slug of the group name, used to key
// per-group state files.
func (g SyncGroup) SafeID() string {
	name := g.Name
	if name == "" {
		name = "default"
	}
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Config is the immutable resolved configuration. It is loaded once at the
// CLI boundary and passed into the engine; nothing mutates it afterwards.
type Config struct {
	Servers map[string]ServerProfile `mapstructure:"servers"`
	Groups  []SyncGroup              `mapstructure:"groups"`

	// Dir is the directory holding the config file, filter file and state.
	Dir string `mapstructure:"-"`
}

func (c *Config) StateDir() string   { return filepath.Join(c.Dir, stateDirName) }
func (c *Config) DeletedDir() string { return filepath.Join(c.Dir, deletedDirName) }
func (c *Config) LogsDir() string    { return filepath.Join(c.Dir, logsDirName) }
func (c *Config) FilterFile() string { return filepath.Join(c.Dir, filterFileName) }

// Server resolves the profile a group references.
func (c *Config) Server(g SyncGroup) (ServerProfile, error) {
	profile, ok := c.Servers[g.Server]
	if !ok {
		return ServerProfile{}, fmt.Errorf("group %q references unknown server %q", g.Name, g.Server)
	}
	return profile, nil
}

// Group looks up a group by name.
func (c *Config) Group(name string) (SyncGroup, error) {
	for _, g := range c.Groups {
		if g.Name == name {
			return g, nil
		}
	}
	return SyncGroup{}, fmt.Errorf("group %q not found", name)
}

func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("no servers configured")
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("no sync groups configured")
	}

	seen := make(map[string]struct{}, len(c.Groups))
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("sync group with empty name")
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("duplicate sync group %q", g.Name)
		}
		seen[g.Name] = struct{}{}

		if g.LocalPath == "" {
			return fmt.Errorf("group %q has no local_path", g.Name)
		}
		if g.RemoteFolder == "" {
			return fmt.Errorf("group %q has no remote_folder", g.Name)
		}
		if _, err := c.Server(g); err != nil {
			return err
		}
	}

	for name, s := range c.Servers {
		if s.HostLocal == "" && s.HostVPN == "" {
			return fmt.Errorf("server %q has neither host_local nor host_vpn", name)
		}
		if s.User == "" {
			return fmt.Errorf("server %q has no user", name)
		}
		if s.RemoteBase == "" {
			return fmt.Errorf("server %q has no remote path", name)
		}
	}

	return nil
}

// Load reads and validates the config file at path. Local paths are
// expanded and resolved once here so the engine only ever sees absolute
// paths.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RSYNCX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config parse %q: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)

	for name, s := range cfg.Servers {
		if s.Port == 0 {
			s.Port = 22
			cfg.Servers[name] = s
		}
	}

	for i, g := range cfg.Groups {
		resolved, err := utils.ResolvePath(g.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("group %q local_path: %w", g.Name, err)
		}
		cfg.Groups[i].LocalPath = resolved
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
