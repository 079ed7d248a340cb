package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xsoft-dev/rsyncx/internal/utils"
)

const defaultConfig = `# rsyncx configuration
#
# servers: connection profiles shared by one or more sync groups.
#   host_local is probed first; host_vpn is the fallback when it is
#   unreachable. Set identity to an ssh private key path for key auth,
#   or leave it empty and set password for sshpass auth.
#
# groups: one entry per local-directory <-> remote-subfolder pairing.

servers:
  default:
    host_local: 192.168.1.2
    host_vpn: ""
    port: 22
    user: rsyncx_user
    password: change_this
    identity: ""
    remote: /volume1/devBackup/rsyncx_default/

groups:
  - name: example
    server: default
    remote_folder: exampleFolder
    local_path: ~/rsyncx_demo/
`

const defaultFilter = `# rsyncx global exclusion patterns (one glob per line)
@eaDir/
.Trash*/
.Spotlight*/
.fseventsd/
.TemporaryItems/
.cache/
.idea/
venv/
.venv/
__pycache__/
node_modules/
dist/
build/
.DS_Store
Thumbs.db
*.pyc
*.pyo
*.tmp
*.swp
*.swo
*.log
`

// Scaffold creates the config directory layout (config file, filter file,
// state/, deleted/, logs/). Existing files are left untouched so it is
// safe to run repeatedly.
func Scaffold(dir string) error {
	cfgPath := filepath.Join(dir, "config.yaml")
	filterPath := filepath.Join(dir, filterFileName)

	for _, d := range []string{
		dir,
		filepath.Join(dir, stateDirName),
		filepath.Join(dir, deletedDirName),
		filepath.Join(dir, logsDirName),
	} {
		if err := utils.EnsureDir(d); err != nil {
			return err
		}
	}

	if !utils.FileExists(cfgPath) {
		if err := os.WriteFile(cfgPath, []byte(defaultConfig), 0o600); err != nil {
			return err
		}
		slog.Info("config created", "path", cfgPath)
	} else {
		slog.Info("config exists", "path", cfgPath)
	}

	if !utils.FileExists(filterPath) {
		if err := os.WriteFile(filterPath, []byte(defaultFilter), 0o644); err != nil {
			return err
		}
		slog.Info("filter created", "path", filterPath)
	} else {
		slog.Info("filter exists", "path", filterPath)
	}

	return nil
}
