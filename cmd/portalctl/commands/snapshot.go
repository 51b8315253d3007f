package commands

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <connection-id>",
	Short: "Show the latest snapshot for a connection.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		snap, err := service.GetLatestSnapshot(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		total, err := service.SnapshotCount(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("snapshot %d of %d, taken %s\n", snap.ID, total, snap.CreatedAt.Format(time.ANSIC))
		if snap.Stale {
			fmt.Println("warning: a later sync attempt failed, this data may be out of date")
		}
		if snap.Data.Attendance != nil {
			fmt.Printf("attendance: %.1f%% (%d/%d)\n",
				snap.Data.Attendance.Percentage,
				snap.Data.Attendance.Attended,
				snap.Data.Attendance.TotalClasses,
			)
		}
		if snap.Data.Fees != nil {
			fmt.Printf("fees due: %.2f by %s\n",
				snap.Data.Fees.TotalDue,
				snap.Data.Fees.DueDate.Format("02 Jan 2006"),
			)
		}

		if len(snap.Data.Assignments) > 0 {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Title", "Course", "Due", "Status"})
			for _, a := range snap.Data.Assignments {
				t.AppendRow(table.Row{
					a.ID, a.Title, a.Course,
					a.DueDate.Format("02 Jan 15:04"),
					a.Status,
				})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		}

		for _, n := range snap.Data.Notices {
			fmt.Printf("- [%s] %s\n", n.Date.Format("02 Jan"), n.Title)
		}
	},
}
