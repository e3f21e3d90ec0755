package autostart

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const unitTemplate = `[Unit]
Description=Foldersync Replica Daemon
After=local-fs.target

[Service]
ExecStart={{.Command}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

var unit = template.Must(template.New("unit").Parse(unitTemplate))

type LinuxAutoStarter struct {
	// Dir overrides ~/.config/systemd/user.
	Dir string
}

func (l *LinuxAutoStarter) unitPath() (string, error) {
	dir := l.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, serviceName+".service"), nil
}

func writeUnit(w io.Writer, execPath string, args []string) error {
	parts := []string{execPath, "watch"}
	parts = append(parts, args...)
	return unit.Execute(w, map[string]string{"Command": strings.Join(parts, " ")})
}

func (l *LinuxAutoStarter) Install(execPath string, args ...string) error {
	path, err := l.unitPath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := writeUnit(f, execPath, args); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if l.Dir != "" {
		return nil
	}

	return systemctl(true,
		[]string{"daemon-reload"},
		[]string{"enable", serviceName + ".service"},
		[]string{"start", serviceName + ".service"},
	)
}

func (l *LinuxAutoStarter) Uninstall() error {
	if l.Dir == "" {
		_ = systemctl(false,
			[]string{"stop", serviceName + ".service"},
			[]string{"disable", serviceName + ".service"},
		)
	}

	path, err := l.unitPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	return nil
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.unitPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}

func systemctl(strict bool, cmds ...[]string) error {
	for _, args := range cmds {
		cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
		out, err := cmd.CombinedOutput()
		if err != nil && strict {
			return fmt.Errorf("failed to run systemctl %v: %w\n%s", args, err, out)
		}
	}
	return nil
}
