package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/data-assistant/internal/model"
	"github.com/rcliao/data-assistant/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search recorded questions, answers and generated SQL",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("session", "s", "", "Only this session")
	cmd.Flags().String("role", "", "Only user or assistant messages")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	sessionID, _ := cmd.Flags().GetString("session")
	role, _ := cmd.Flags().GetString("role")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	switch model.Role(role) {
	case "", model.RoleUser, model.RoleAssistant:
	default:
		exitErr("search", fmt.Errorf("role must be user or assistant, got %q", role))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.SearchMessages(cmd.Context(), store.SearchParams{
		SessionID: sessionID,
		Role:      model.Role(role),
		Query:     query,
		Limit:     limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if textOutput() {
		for _, r := range results {
			fmt.Println(mutedStyle.Render(r.SessionID + " " + r.CreatedAt.Format("2006-01-02 15:04:05")))
			renderMessage(os.Stdout, r.ChatMessage)
		}
		return
	}
	printJSON(os.Stdout, results)
}
