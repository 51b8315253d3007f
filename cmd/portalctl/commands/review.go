package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(contactCmd)
}

var reviewCmd = &cobra.Command{
	Use:   "review <connection-id> <assignment-id>",
	Short: "Check an assignment against its deadline before submitting.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		review, err := service.ReviewSubmission(cmd.Context(), args[0], args[1])
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%s (%s)\n", review.Assignment.Title, review.Assignment.Course)
		fmt.Printf("status: %s\n", review.DeadlineStatus)
		if review.IsValid {
			fmt.Printf("submission window open, %.1f hours remaining\n", review.HoursRemaining)
		} else {
			fmt.Println("submission window closed")
		}
	},
}

var contactCmd = &cobra.Command{
	Use:   "contact <user-id> <email> [phone]",
	Short: "Set where a user's reminders get delivered.",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		phone := ""
		if len(args) == 3 {
			phone = args[2]
		}
		err = service.SetContact(cmd.Context(), args[0], args[1], phone)
		if err != nil {
			log.Fatal(err)
		}
	},
}
