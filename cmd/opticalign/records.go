package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atelab/opticalign/pkg/procedure"
)

func NewRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Short:   "Manage the test record log",
		GroupID: gProcedure,
	}

	var session string
	history := &cobra.Command{
		Use:   "history",
		Short: "List records persisted by the daemon, across sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := apiClient.GetRecordHistory(cmd.Context(), session)
			if err != nil {
				return err
			}
			for _, r := range rs {
				cmd.Printf("  %s #%-3d %s %s", r.SessionID, r.Index, r.CreatedAt.Local().Format(time.DateTime), r.Status)
				if r.XDeviation != nil && r.YDeviation != nil {
					cmd.Printf("  x %+.2f px, y %+.2f px", *r.XDeviation, *r.YDeviation)
				}
				cmd.Println()
			}
			return nil
		},
	}
	history.Flags().StringVar(&session, "session", "", "only list records of this session")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add",
			Short: "Append a pending test record",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r, err := apiClient.AddRecord(cmd.Context())
				if err != nil {
					return err
				}
				logrus.Infof("test record #%d added", r.Index)
				return nil
			},
		},
		&cobra.Command{
			Use:   "complete [index]",
			Short: "Complete a record with the current reference camera centroid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := parseIntArg(args, "index")
				if err != nil {
					return err
				}
				r, err := apiClient.CompleteRecord(cmd.Context(), index)
				if err != nil {
					return err
				}
				printRecord(cmd, *r)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the records of the current session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rs, err := apiClient.GetRecords(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range rs {
					printRecord(cmd, r)
				}
				return nil
			},
		},
		history,
	)

	return cmd
}

func printRecord(cmd *cobra.Command, r procedure.TestRecord) {
	cmd.Printf("  #%-3d %s %s", r.Index, r.Timestamp.Local().Format(time.TimeOnly), bold("%s", r.Status))
	if r.Result != nil {
		cmd.Printf("  x %+.2f px, y %+.2f px", r.Result.X, r.Result.Y)
	}
	cmd.Println()
}
