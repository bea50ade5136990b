package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/data-assistant/internal/store"
)

func init() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded questions and answers",
		Args:  cobra.NoArgs,
		Run:   runHistory,
	}
	historyCmd.Flags().StringP("session", "s", "", "Only this session (default: all sessions)")
	historyCmd.Flags().IntP("limit", "l", 100, "Max messages, newest kept")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		Run:   runSessions,
	}
	sessionsCmd.Flags().IntP("limit", "l", 20, "Max sessions")

	RootCmd.AddCommand(historyCmd, sessionsCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	sessionID, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	msgs, err := s.ListMessages(cmd.Context(), store.ListMessagesParams{SessionID: sessionID, Limit: limit})
	if err != nil {
		exitErr("history", err)
	}

	if textOutput() {
		for _, m := range msgs {
			renderMessage(os.Stdout, m)
		}
		return
	}
	printJSON(os.Stdout, msgs)
}

func runSessions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sessions, err := s.ListSessions(cmd.Context(), limit)
	if err != nil {
		exitErr("list sessions", err)
	}

	if textOutput() {
		t := &table{headers: []string{"SESSION", "MESSAGES", "STARTED", "LAST"}}
		for _, ss := range sessions {
			t.add(ss.ID, strconv.Itoa(ss.Messages), ss.StartedAt, ss.LastAt)
		}
		fmt.Println(t.String())
		return
	}
	printJSON(os.Stdout, sessions)
}
