package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jandubois/healthagent/internal/probe"
	"github.com/jandubois/healthagent/internal/probes"
	"github.com/jandubois/healthagent/internal/probes/command"
	"github.com/jandubois/healthagent/internal/probes/debug"
	"github.com/jandubois/healthagent/internal/probes/disksmart"
	"github.com/jandubois/healthagent/internal/probes/diskspace"
	"github.com/jandubois/healthagent/internal/probes/servicehealth"
	"github.com/jandubois/healthagent/internal/probes/sslexpiry"
)

// disk-smart probe
var diskSmartCmd = &cobra.Command{
	Use:   disksmart.Name,
	Short: "Check SMART health of disks (SMART_DISKS, SMART_SUDO)",
	Run: func(cmd *cobra.Command, args []string) {
		sudo, _ := strconv.ParseBool(os.Getenv("SMART_SUDO"))
		exitWith(disksmart.Run(cmd.Context(), os.Getenv("SMART_DISKS"), sudo))
	},
}

// service-health probe
var serviceHealthCmd = &cobra.Command{
	Use:   servicehealth.Name,
	Short: "Check services, processes and ports (CHECK_SERVICES, CHECK_PROCESSES, CHECK_PORTS)",
	Run: func(cmd *cobra.Command, args []string) {
		services, ok := os.LookupEnv("CHECK_SERVICES")
		if !ok {
			services = servicehealth.DefaultServices
		}
		exitWith(servicehealth.Run(cmd.Context(), services, os.Getenv("CHECK_PROCESSES"), os.Getenv("CHECK_PORTS")))
	},
}

// ssl-expiry probe
var sslExpiryCmd = &cobra.Command{
	Use:   sslexpiry.Name,
	Short: "Check TLS certificate expiry (SSL_HOSTS)",
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(sslexpiry.Run(cmd.Context(), os.Getenv("SSL_HOSTS")))
	},
}

// disk-space probe
var diskSpaceCmd = &cobra.Command{
	Use:   diskspace.Name,
	Short: "Check available disk space on a path",
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		minFreeGB, _ := cmd.Flags().GetFloat64("min_free_gb")
		warnFreeGB, _ := cmd.Flags().GetFloat64("warn_free_gb")
		minFreePercent, _ := cmd.Flags().GetFloat64("min_free_percent")

		exitWith(diskspace.Run(path, minFreeGB, warnFreeGB, minFreePercent))
	},
}

// command probe
var commandCmd = &cobra.Command{
	Use:   command.Name,
	Short: "Run a command and check its exit code",
	Run: func(cmd *cobra.Command, args []string) {
		cmdStr, _ := cmd.Flags().GetString("command")
		shell, _ := cmd.Flags().GetString("shell")
		okCodes, _ := cmd.Flags().GetString("ok_codes")
		warningCodes, _ := cmd.Flags().GetString("warning_codes")
		captureOutput, _ := cmd.Flags().GetBool("capture_output")

		exitWith(command.Run(cmd.Context(), cmdStr, shell, okCodes, warningCodes, captureOutput))
	},
}

// debug probe
var debugCmd = &cobra.Command{
	Use:   debug.Name,
	Short: "Debug probe for testing failure modes",
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		message, _ := cmd.Flags().GetString("message")
		delayMs, _ := cmd.Flags().GetInt("delay_ms")

		exitWith(debug.Run(cmd.Context(), mode, message, time.Duration(delayMs)*time.Millisecond))
	},
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version and exit")
	rootCmd.Flags().Bool("describe", false, "Output built-in probe descriptions as JSON array")

	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("healthagent version %s\n", Version)
			return
		}
		if describe, _ := cmd.Flags().GetBool("describe"); describe {
			printDescriptions()
			return
		}
		cmd.Help()
	}

	for _, c := range []*cobra.Command{diskSmartCmd, serviceHealthCmd, sslExpiryCmd, diskSpaceCmd, commandCmd, debugCmd} {
		c.GroupID = probeGroupID
		rootCmd.AddCommand(c)
	}

	// disk-space flags
	diskSpaceCmd.Flags().String("path", "/", "Path to check")
	diskSpaceCmd.Flags().Float64("min_free_gb", 10, "Free gigabytes below which the check is critical")
	diskSpaceCmd.Flags().Float64("warn_free_gb", 0, "Free gigabytes below which the check warns (0 to disable)")
	diskSpaceCmd.Flags().Float64("min_free_percent", 0, "Minimum free percentage (0-100)")

	// command flags
	commandCmd.Flags().String("command", "", "Command to run")
	commandCmd.Flags().String("shell", "/bin/sh", "Shell to use for execution")
	commandCmd.Flags().String("ok_codes", "0", "Comma-separated exit codes that indicate success")
	commandCmd.Flags().String("warning_codes", "", "Comma-separated exit codes that indicate warning")
	commandCmd.Flags().Bool("capture_output", true, "Include command output in result data")

	// debug flags
	debugCmd.Flags().String("mode", "ok", "Probe behavior mode ("+strings.Join(debug.Modes, ", ")+")")
	debugCmd.Flags().String("message", "", "Custom message to return")
	debugCmd.Flags().Int("delay_ms", 0, "Delay before responding (milliseconds)")
}

func printDescriptions() {
	descs := probes.GetAllDescriptions()
	json.NewEncoder(os.Stdout).Encode(descs)
}

// exitWith prints the result and terminates with its severity exit code.
func exitWith(result *probe.Result) {
	os.Exit(probe.Emit(os.Stdout, result))
}
