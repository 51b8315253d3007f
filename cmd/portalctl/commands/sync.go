package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync <connection-id>",
	Short: "Run one sync for a connection and report what changed.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		result, err := service.Sync(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("snapshot %d persisted\n", result.Snapshot.ID)
		if !result.Changed {
			fmt.Println("no changes since last sync")
			return
		}
		fmt.Printf("new assignments: %d\n", len(result.Delta.NewAssignments))
		fmt.Printf("overdue: %d\n", len(result.Delta.Overdue))
		fmt.Printf("due within 48h: %d\n", len(result.Delta.DueSoon))
		fmt.Printf("notices changed: %v\n", result.Delta.NoticesChanged)
	},
}
