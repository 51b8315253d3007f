package commands

import (
	"fmt"
	"log"
	"syscall"

	"portalsync-backend/services/portals"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var connectUser string

func init() {
	connectCmd.Flags().StringVar(&connectUser, "user", "", "user id owning the connection")
	connectCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(connectCmd)
}

var connectCmd = &cobra.Command{
	Use:   "connect <portal-type> <portal-url> <login-id>",
	Short: "Connect a portal account. The password is read from the terminal.",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		typ, err := portals.ParsePortalType(args[0])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal(err)
		}

		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		id, err := service.Connect(cmd.Context(), connectUser, typ, args[1], args[2], string(password))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("connected: %s\n", id)
	},
}
