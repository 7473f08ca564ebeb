package main

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/device"
)

func NewDeviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "device",
		Short:   "Control the composite devices",
		GroupID: gHardware,
		Long: `Control the composite devices: the indicator laser (indicationLaser,
laser), the black body (blackBody, bb) and the visible light source
(visibleLight, light).

Raw values: indicator laser 0-1000 (tenths of a percent), black body
0-40000 (thousandths of a degree Celsius), visible light 0-500 (fifths of
a percent).`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "toggle [device]",
			Short: "Switch a device on with its last value, or off",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := apiClient.ControlDevice(cmd.Context(), args[0], nil)
				if err != nil {
					return err
				}
				logDeviceState(*st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set [device] [raw value]",
			Short: "Adjust a device that is on",
			Long: `Adjust a device that is on.

A device that is off is left off; switch it on with "device toggle" first.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := parseIntArg(args[1:], "value")
				if err != nil {
					return err
				}
				st, err := apiClient.ControlDevice(cmd.Context(), args[0], &value)
				if err != nil {
					return err
				}
				if !st.On {
					logrus.Warnf("%s is off, value not applied", st.Kind)
					return nil
				}
				logDeviceState(*st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "connections",
			Short: "Show which devices the payload controller reports as connected",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				status, err := apiClient.GetPayloadDevices(cmd.Context())
				if err != nil {
					return err
				}
				names := make([]string, 0, len(status))
				for name := range status {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					cmd.Printf("  %s: %s\n", name, bool2Text(status[name]))
				}
				return nil
			},
		},
	)

	return cmd
}

func logDeviceState(st device.State) {
	if st.On {
		logrus.Infof("%s is on at %s", st.Kind, st.Display)
		return
	}
	logrus.Infof("%s is off", st.Kind)
}

func deviceLine(st device.State) string {
	if !st.On {
		return fmt.Sprintf("%s (last %s)", bool2Text(false), device.Format(st.Kind, st.LastValue))
	}
	return fmt.Sprintf("%s %s", bool2Text(true), bold("%s", st.Display))
}
