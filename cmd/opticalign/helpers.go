package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/procedure"
)

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func parseFloatArg(args []string, valueName string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "enable", "1":
		return true, nil
	case "off", "false", "disable", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// reportTeardown logs the cleanup failures of a step or axis change. The
// change itself has happened either way.
func reportTeardown(errs []string) {
	for _, e := range errs {
		logrus.Warnf("teardown: %s", e)
	}
}

func newStepCommand(use, short string, move func(cmd *cobra.Command) (*procedure.Transition, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := move(cmd)
			if err != nil {
				return err
			}
			reportTeardown(t.TeardownErrors)
			if !t.Moved {
				logrus.Info(t.Notice)
				return nil
			}
			logrus.Infof("moved from step %d (%s) to step %d (%s)", t.From, t.From, t.To, t.To)
			return nil
		},
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
