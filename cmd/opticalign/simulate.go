package main

import (
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/simulator"
)

func NewSimulateCommand() *cobra.Command {
	opts := simulator.DefaultOptions
	var listen string

	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run a simulated payload controller",
		GroupID: gAdvanced,
		Long: `Run a simulated payload controller.

It serves the device control endpoints and the camera stream websocket on
one address, so the daemon can be exercised without hardware. Point
payloadURL and streamURL of the daemon config at it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simulator.New(opts).Run(cmd.Context(), listen)
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", "127.0.0.1:5000", "address to listen on")
	f.DurationVar(&opts.FrameInterval, "frame-interval", opts.FrameInterval, "time between two frames of a streaming camera")
	f.IntVar(&opts.Width, "width", opts.Width, "frame width in pixels")
	f.IntVar(&opts.Height, "height", opts.Height, "frame height in pixels")
	f.Float64Var(&opts.Temperature, "temperature", opts.Temperature, "base pulsed laser temperature in °C")

	return cmd
}
