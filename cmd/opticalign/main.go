package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/atelab/opticalign/pkg/client"
	"github.com/atelab/opticalign/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/opticalign.sock"
	configPath     = "/etc/opticalign.json"
)

var apiClient *client.Client

var (
	gProcedure    = "Procedure:"
	gHardware     = "Hardware:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gProcedure,
		gHardware,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: opticalign daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'opticalign daemon' (as root, or with '--always-allow-non-root-access').")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag to grant permissions to your user")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd := NewCommand()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opticalign",
		Short: "opticalign drives optical-axis alignment tests of an electro-optical pod",
		Long: `opticalign drives optical-axis alignment tests of an electro-optical pod.

The daemon owns the test session: the step workflow, camera streams, the
composite devices, the pulsed laser and the test record log. Every other
command talks to the daemon over its unix socket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}
			apiClient = client.NewClient(unixSocketPath)

			if cmd.GroupID == gInstallation || cmd.Name() == "daemon" || cmd.Name() == "simulate" {
				return nil
			}
			if daemonVersion, err := apiClient.GetVersion(cmd.Context()); err == nil {
				if clientVersion := version.Version; daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. opticalign may not work as expected.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "opticalign daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewSimulateCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewStepCommand(),
		NewAxisCommand(),
		NewCameraCommand(),
		NewDeviceCommand(),
		NewPulsedLaserCommand(),
		NewRecordCommand(),
		NewConfigCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
