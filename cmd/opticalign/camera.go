package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/client"
	"github.com/atelab/opticalign/pkg/stream"
)

func cameraList() string {
	ids := make([]string, 0, len(stream.Cameras))
	for _, id := range stream.Cameras {
		ids = append(ids, string(id))
	}
	return strings.Join(ids, "|")
}

func logCameraResponse(resp *client.CameraResponse, format string, a ...any) {
	if resp.Warning != "" {
		logrus.Warn(resp.Warning)
		return
	}
	logrus.Infof(format, a...)
}

func NewCameraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "camera",
		Short:   "Control camera streams",
		GroupID: gHardware,
		Long: `Control camera streams.

Cameras: ` + cameraList() + `
Centroid algorithms: ` + strings.Join(stream.Algorithms, "|"),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start [camera]",
			Short: "Start streaming a camera",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := apiClient.StartStream(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				logCameraResponse(resp, "camera %s is streaming", resp.Camera.Camera)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop [camera]",
			Short: "Stop streaming a camera",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := apiClient.StopStream(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				logCameraResponse(resp, "camera %s stopped", resp.Camera.Camera)
				return nil
			},
		},
		&cobra.Command{
			Use:   "algorithm [camera] [" + strings.Join(stream.Algorithms, "|") + "]",
			Short: "Select the centroid algorithm of a streaming camera",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := apiClient.SetAlgorithm(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				logCameraResponse(resp, "camera %s uses the %s centroid algorithm", resp.Camera.Camera, resp.Camera.Algorithm)
				return nil
			},
		},
		&cobra.Command{
			Use:   "overlay [camera] [centroid|crosshair] [on|off]",
			Short: "Switch a frame overlay",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				enabled, err := parseOnOff(args[2])
				if err != nil {
					return err
				}
				resp, err := apiClient.SetOverlay(cmd.Context(), args[0], args[1], enabled)
				if err != nil {
					return err
				}
				logCameraResponse(resp, "%s overlay of camera %s switched %s", args[1], resp.Camera.Camera, args[2])
				return nil
			},
		},
		&cobra.Command{
			Use:   "show [camera]",
			Short: "Show the latest centroid of a camera",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				snap, err := apiClient.GetCamera(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printCamera(cmd, *snap)
				return nil
			},
		},
		&cobra.Command{
			Use:   "frame [camera] [file]",
			Short: "Save the latest frame of a camera",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := apiClient.GetFrame(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[1], b, 0644); err != nil {
					return fmt.Errorf("failed to write frame: %w", err)
				}
				logrus.Infof("saved %d bytes to %s", len(b), args[1])
				return nil
			},
		},
	)

	return cmd
}

func printCamera(cmd *cobra.Command, s stream.Snapshot) {
	cmd.Printf("  %s: streaming %s", bold("%-9s", s.Camera), bool2Text(s.Streaming))
	if !s.Streaming {
		cmd.Println()
		return
	}
	cmd.Printf(", algorithm %s", bold("%s", s.Algorithm))
	if s.ImageSize.Valid() {
		cmd.Printf(", %dx%d", s.ImageSize.Width, s.ImageSize.Height)
	}
	if s.Centroid.Success {
		cmd.Printf(", centroid (%.1f, %.1f)", s.Centroid.X, s.Centroid.Y)
	}
	cmd.Println()
}
