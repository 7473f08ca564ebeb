package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	var frames bool

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gProcedure,
		Short:   "Print session events as they happen",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			evs, err := apiClient.SubscribeEvents(cmd.Context(), frames)
			if err != nil {
				return err
			}
			for ev := range evs {
				cmd.Println(formatEvent(ev))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&frames, "frames", false, "include a line per camera frame")

	return cmd
}

var noticeColors = map[events.Level]*color.Color{
	events.LevelSuccess: color.New(color.FgGreen),
	events.LevelInfo:    color.New(color.FgCyan),
	events.LevelWarning: color.New(color.FgYellow),
	events.LevelError:   color.New(color.Bold, color.FgRed),
}

func formatEvent(ev events.Event) string {
	ts := time.UnixMilli(ev.Ts).Local().Format("15:04:05.000")

	if ev.Name == events.NoticeEvent {
		n, err := events.DecodeAs[events.Notice](ev)
		if err == nil {
			c, ok := noticeColors[n.Level]
			if !ok {
				c = color.New()
			}
			return fmt.Sprintf("%s %s %s", ts, c.Sprintf("[%s] %s", n.Level, n.Source), n.Message)
		}
	}

	return fmt.Sprintf("%s %s %s", ts, bold("%s", ev.Name), string(ev.Data))
}
