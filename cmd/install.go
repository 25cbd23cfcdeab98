package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	unitName = "healthagent.service"
	unitDir  = "/etc/systemd/system"
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Healthagent host monitoring
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.Executable}} run --config {{.Config}}
WorkingDirectory={{.WorkDir}}
Restart=always
RestartSec=10
{{- if .User}}
User={{.User}}
{{- end}}

[Install]
WantedBy=multi-user.target
`))

type unitData struct {
	Executable string
	Config     string
	WorkDir    string
	User       string
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install healthagent as a systemd service (Linux)",
	Long: `Install healthagent as a systemd unit that starts at boot and runs
"healthagent run" with the given configuration file.

The unit is written to /etc/systemd/system and restarts automatically if
the agent exits.`,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the healthagent systemd service (Linux)",
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)

	installCmd.Flags().String("user", "", "Run the service as this user (default root)")
	installCmd.Flags().Bool("no-start", false, "Write and enable the unit without starting it")
}

func renderUnit(data unitData) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.Bytes(), nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("install command is only supported on Linux")
	}

	user, _ := cmd.Flags().GetString("user")
	noStart, _ := cmd.Flags().GetBool("no-start")

	// Refuse to install a unit that would fail on its first start.
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	configPath, _ := cmd.Flags().GetString("config")
	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	unit, err := renderUnit(unitData{
		Executable: executable,
		Config:     configPath,
		WorkDir:    cfg.Service.BaseDir,
		User:       user,
	})
	if err != nil {
		return err
	}

	unitPath := filepath.Join(unitDir, unitName)
	if err := os.WriteFile(unitPath, unit, 0o644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	enable := []string{"enable", unitName}
	if !noStart {
		enable = []string{"enable", "--now", unitName}
	}
	if err := systemctl(enable...); err != nil {
		return err
	}

	fmt.Printf("Installed %s\n", unitName)
	fmt.Printf("Unit: %s\n", unitPath)
	fmt.Printf("Logs: journalctl -u %s\n", unitName)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("uninstall command is only supported on Linux")
	}

	unitPath := filepath.Join(unitDir, unitName)
	if _, err := os.Stat(unitPath); os.IsNotExist(err) {
		return fmt.Errorf("service is not installed")
	}

	if err := systemctl("disable", "--now", unitName); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}

	fmt.Printf("Uninstalled %s\n", unitName)
	return nil
}

func systemctl(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v failed: %w: %s", args, err, bytes.TrimSpace(out))
	}
	return nil
}
