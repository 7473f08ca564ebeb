package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/procedure"
	"github.com/atelab/opticalign/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewStepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "step",
		Short:   "Move through the six test steps",
		GroupID: gProcedure,
		Long: `Move through the six test steps.

Leaving a step tears down what it started (streams, sources, the indicator
laser). Entering a step never switches hardware on.`,
	}

	cmd.AddCommand(newNextCommand(), newPrevCommand())

	return cmd
}

func newNextCommand() *cobra.Command {
	return newStepCommand("next", "Advance to the next test step", func(cmd *cobra.Command) (*procedure.Transition, error) {
		t, err := apiClient.NextStep(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to advance: %v", err)
		}
		return t, nil
	})
}

func newPrevCommand() *cobra.Command {
	return newStepCommand("prev", "Go back to the previous test step", func(cmd *cobra.Command) (*procedure.Transition, error) {
		t, err := apiClient.PrevStep(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to go back: %v", err)
		}
		return t, nil
	})
}

func NewAxisCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "axis [transmit|receive] [ir|visible|laser]",
		Short:   "Select the reference axis under test",
		GroupID: gProcedure,
		Long: `Select the reference axis under test.

The axis decides which cameras are relevant in the reference setup and
measurement steps. Changing it stops whatever the reference setup step
started.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, err := apiClient.SetAxis(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to set reference axis: %v", err)
			}
			reportTeardown(change.TeardownErrors)
			if !change.Changed {
				logrus.Infof("reference axis is already %s", change.To)
				return nil
			}
			logrus.Infof("reference axis changed from %s to %s", change.From, change.To)
			return nil
		},
	}
}
