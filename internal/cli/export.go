package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded messages as JSON",
		Long:  "Export recorded messages as newline-delimited JSON, oldest first. Filter by session with -s.",
		Args:  cobra.NoArgs,
		Run:   runExport,
	}

	cmd.Flags().StringP("session", "s", "", "Filter by session")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	sessionID, _ := cmd.Flags().GetString("session")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	msgs, err := s.ExportMessages(cmd.Context(), sessionID)
	if err != nil {
		exitErr("export", err)
	}

	for _, m := range msgs {
		b, _ := json.Marshal(m)
		fmt.Println(string(b))
	}
}
