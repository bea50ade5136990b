package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		Run:   runPing,
	}

	RootCmd.AddCommand(cmd)
}

func runPing(cmd *cobra.Command, args []string) {
	logger := newLogger()
	defer logger.Sync()

	client := newClient(nil, logger)
	defer client.Close()

	start := time.Now()
	h, err := client.Health(cmd.Context())
	if err != nil {
		exitErr("ping "+client.BaseURL(), err)
	}
	elapsed := time.Since(start)

	if textOutput() {
		fmt.Printf("%s %s (%s)\n", client.BaseURL(), h.Status, elapsed.Round(time.Millisecond))
		return
	}
	printJSON(os.Stdout, map[string]any{
		"api_url":    client.BaseURL(),
		"status":     h.Status,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}
