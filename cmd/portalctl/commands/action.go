package commands

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
)

var actionParams []string

func init() {
	actionCmd.Flags().StringArrayVarP(&actionParams, "param", "p", nil, "action parameter as key=value, repeatable")
	rootCmd.AddCommand(actionCmd)
}

var actionCmd = &cobra.Command{
	Use:   "action <connection-id> <action-name>",
	Short: "Perform a portal action, e.g. apply_exam or submit_assignment.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		params := map[string]string{}
		for _, p := range actionParams {
			key, value, ok := strings.Cut(p, "=")
			if !ok {
				log.Fatalf("malformed param %q, want key=value", p)
			}
			params[key] = value
		}

		service, cleanup, err := openServices()
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		result, err := service.PerformAction(cmd.Context(), args[0], args[1], params)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(result.Message)
		if result.FilePath != "" {
			fmt.Printf("saved to %s\n", result.FilePath)
		}
	},
}
