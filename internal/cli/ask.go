package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/data-assistant/internal/model"
	"github.com/rcliao/data-assistant/internal/session"
)

const selectPrompt = "Please select at least one dataset (-d <id>)."

func init() {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question about the selected datasets",
		Long: `Ask one question about the selected datasets and print the question and answer.
Datasets of different owners cannot be queried together: the owner of the first
selected dataset wins and the rest are left out.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runAsk,
	}

	cmd.Flags().StringSliceP("dataset", "d", nil, "Dataset id to query (repeatable or comma-separated)")
	cmd.Flags().String("session", "", "Session id to record under (default: a new one)")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	ids, _ := cmd.Flags().GetStringSlice("dataset")
	sessionID, _ := cmd.Flags().GetString("session")
	question := strings.Join(args, " ")

	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, selectPrompt)
		os.Exit(1)
	}

	e := openEnv()
	defer e.Close()

	sess := e.newSession(sessionID)
	if _, err := sess.Open(cmd.Context(), false); err != nil {
		e.logger.Warn("catalog refresh failed, using cached catalog", zap.Error(err))
	}
	sess.Selection.Replace(ids)

	_, err := sess.Ask(cmd.Context(), question)
	if err != nil {
		if errors.Is(err, session.ErrNoSelection) {
			fmt.Fprintln(os.Stderr, selectPrompt)
			os.Exit(1)
		}
		exitErr("ask", err)
	}

	msgs := sess.Messages()
	if textOutput() {
		for _, m := range msgs {
			renderMessage(os.Stdout, m)
		}
		return
	}
	printJSON(os.Stdout, struct {
		SessionID string              `json:"session_id"`
		Messages  []model.ChatMessage `json:"messages"`
	}{sess.ID, msgs})
}
