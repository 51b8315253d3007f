package commands

import (
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(deactivateCmd)
	rootCmd.AddCommand(autosyncCmd)
}

var connectionsCmd = &cobra.Command{
	Use:   "connections <user-id>",
	Short: "List a user's active portal connections.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		conns, err := service.Connections(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Portal", "Login ID", "Auto-sync", "Created"})
		for _, conn := range conns {
			t.AppendRow(table.Row{
				conn.ID,
				conn.Type,
				conn.LoginID,
				conn.AutoSync,
				conn.CreatedAt.Format(time.ANSIC),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <connection-id>",
	Short: "Deactivate a connection. Snapshot history is kept.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		err = service.Deactivate(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}
	},
}

var autosyncCmd = &cobra.Command{
	Use:   "autosync <connection-id> <on|off>",
	Short: "Toggle scheduled background syncing for a connection.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		err = service.SetAutoSync(cmd.Context(), args[0], args[1] == "on")
		if err != nil {
			log.Fatal(err)
		}
	},
}
