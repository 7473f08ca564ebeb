package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/laser"
	"github.com/atelab/opticalign/pkg/procedure"
)

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gProcedure,
		Short:   "Get the current state of the test session",
		Long:    `Get the test step, reference axis, cameras, devices, pulsed laser and records of the session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(s, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode status: %w", err)
				}
				cmd.Println(string(b))
				return nil
			}
			printStatus(cmd, s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw session state as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, s *procedure.Snapshot) {
	cmd.Println(bold("Session:"))
	cmd.Printf("  ID: %s\n", s.SessionID)
	step := bold("%d/%d %s", s.Step, procedure.LastStep, s.StepName)
	if s.Step == procedure.LastStep {
		step = color.New(color.Bold, color.FgGreen).Sprintf("%d/%d %s", s.Step, procedure.LastStep, s.StepName)
	}
	cmd.Printf("  Step: %s\n", step)
	cmd.Printf("  Reference axis: %s (reference camera %s)\n", bold("%s", s.Axis), s.Axis.ReferenceCamera())
	cmd.Printf("  Stream channel connected: %s\n", bool2Text(s.Connected))
	cmd.Println()

	cmd.Println(bold("Cameras:"))
	for _, c := range s.Cameras {
		printCamera(cmd, c)
	}
	cmd.Println()

	cmd.Println(bold("Devices:"))
	for _, d := range s.Devices {
		cmd.Printf("  %s: %s\n", bold("%-15s", d.Kind), deviceLine(d))
	}
	cmd.Println()

	printPulsedLaser(cmd, s.PulsedLaser)
	cmd.Println()

	cmd.Println(bold("Records:"))
	if len(s.Records) == 0 {
		cmd.Println("  none")
	}
	for _, r := range s.Records {
		printRecord(cmd, r)
	}
}

func printPulsedLaser(cmd *cobra.Command, l laser.State) {
	cmd.Println(bold("Pulsed laser:"))
	cmd.Printf("  On: %s\n", bool2Text(l.On))
	cmd.Printf("  Power: %s\n", bold("%g", l.Power))
	cmd.Printf("  Frequency: %s\n", bold("%s", l.Frequency))
	cmd.Printf("  Pulse width: %s\n", bold("%g ns", l.PulseWidthNs))
	polling := "not polling"
	if l.Polling {
		polling = color.GreenString("polling")
	}
	if l.TemperatureAt.IsZero() {
		cmd.Printf("  Temperature: %s\n", polling)
		return
	}
	cmd.Printf("  Temperature: %s at %s (%s)\n", bold("%.1f °C", l.TemperatureC), l.TemperatureAt.Local().Format("15:04:05"), polling)
}

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Print the configuration the daemon runs with",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(conf, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			cmd.Println(string(b))
			return nil
		},
	}
}
