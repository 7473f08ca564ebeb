package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/daemon"
	"github.com/atelab/opticalign/pkg/version"
)

// NewDaemonCommand runs the session owner. systemd starts it through the
// unit written by install.
func NewDaemonCommand() *cobra.Command {
	opts := daemon.Options{}

	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run the alignment test daemon in the foreground",
		GroupID: gAdvanced,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if os.Geteuid() != 0 && !opts.AllowNonRoot {
				logrus.Warn("daemon is not running as root, the socket may not be reachable by other users")
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			opts.ConfigPath = configPath
			opts.SocketPath = unixSocketPath
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
				"config":  opts.ConfigPath,
				"socket":  opts.SocketPath,
			}).Info("opticalign daemon starting")
			return daemon.Run(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.AllowNonRoot, "always-allow-non-root-access", false,
		"Open the daemon socket to non-root users regardless of the config")

	return cmd
}
