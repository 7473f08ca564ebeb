package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/client"
	"github.com/atelab/opticalign/pkg/laser"
)

func NewPulsedLaserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pulsed",
		Short:   "Control the pulsed SWIR laser",
		GroupID: gHardware,
		Long: `Control the pulsed SWIR laser.

Every command sends the full parameter tuple. Parameters not given keep
their last acknowledged value.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "toggle",
			Short: "Switch the pulsed laser on or off",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return controlPulsedLaser(cmd, client.PulsedLaserRequest{Operation: string(laser.OpToggle)})
			},
		},
		newPulsedParamCommand("power [value]", "Set the pulsed laser power", func(v float64) client.PulsedLaserRequest {
			return client.PulsedLaserRequest{Operation: string(laser.OpPower), Power: &v}
		}),
		newPulsedParamCommand("frequency [hz]", "Set the pulse repetition frequency", func(v float64) client.PulsedLaserRequest {
			return client.PulsedLaserRequest{Operation: string(laser.OpFrequency), FrequencyHz: &v}
		}),
		newPulsedParamCommand("pulse-width [ns]", "Set the pulse width", func(v float64) client.PulsedLaserRequest {
			return client.PulsedLaserRequest{Operation: string(laser.OpPulseWidth), PulseWidthNs: &v}
		}),
		&cobra.Command{
			Use:   "temperature",
			Short: "Read the pulsed laser temperature now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				t, err := apiClient.GetPulsedLaserTemperature(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("%s\n", bold("%.1f °C", t))
				return nil
			},
		},
		&cobra.Command{
			Use:   "history",
			Short: "Show the recorded temperature samples",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				samples, err := apiClient.GetTemperatureHistory(cmd.Context())
				if err != nil {
					return err
				}
				if len(samples) == 0 {
					logrus.Info("no temperature samples yet")
					return nil
				}
				for _, s := range samples {
					cmd.Printf("  %s  %.1f °C\n", s.At.Local().Format("15:04:05"), s.TemperatureC)
				}
				return nil
			},
		},
	)

	return cmd
}

func newPulsedParamCommand(use, short string, req func(v float64) client.PulsedLaserRequest) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArg(args, "value")
			if err != nil {
				return err
			}
			return controlPulsedLaser(cmd, req(v))
		},
	}
}

func controlPulsedLaser(cmd *cobra.Command, req client.PulsedLaserRequest) error {
	st, err := apiClient.ControlPulsedLaser(cmd.Context(), req)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"power":      st.Power,
		"frequency":  st.Frequency,
		"pulseWidth": st.PulseWidthNs,
	}).Infof("pulsed laser on: %t", st.On)
	return nil
}
