package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/data-assistant/internal/model"
	"github.com/rcliao/data-assistant/internal/session"
)

const chatHelp = `Type a question, or one of:
  /select a,b    replace the selection
  /toggle id     select or deselect one dataset
  /clear         clear the selection
  /datasets      list datasets (* = selected)
  /refresh       sync the uploads folder and reload datasets
  /user [id]     show or change the active identity
  /quit          leave`

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question and answer session",
		Long:  "Read questions from stdin, one per line, and print each answer. Lines starting with / are session commands; /help lists them.",
		Args:  cobra.NoArgs,
		Run:   runChat,
	}

	cmd.Flags().StringSliceP("dataset", "d", nil, "Initially selected dataset ids")
	cmd.Flags().String("session", "", "Session id to record under (default: a new one)")
	cmd.Flags().Bool("no-sync", false, "Skip the uploads folder sync on start")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	ids, _ := cmd.Flags().GetStringSlice("dataset")
	sessionID, _ := cmd.Flags().GetString("session")
	noSync, _ := cmd.Flags().GetBool("no-sync")

	e := openEnv()
	defer e.Close()

	sess := e.newSession(sessionID)
	if _, err := sess.Open(cmd.Context(), !noSync); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Failed to load datasets: "+err.Error()))
	}
	sess.Selection.Replace(ids)

	repl := &chatREPL{sess: sess, out: os.Stdout, text: formatFlag != "json" || isTerminal(os.Stdin)}
	if err := repl.run(cmd.Context(), os.Stdin); err != nil {
		exitErr("chat", err)
	}
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}

// chatREPL drives a session from line input. In text mode entries are
// rendered for a terminal; otherwise each new entry is one JSON line.
type chatREPL struct {
	sess *session.Session
	out  io.Writer
	text bool
}

func (r *chatREPL) run(ctx context.Context, in io.Reader) error {
	if r.text {
		fmt.Fprintf(r.out, "%s as %s, session %s. /help for commands.\n",
			titleStyle.Render("data-assistant"), r.sess.Identity.Get(), r.sess.ID)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		r.prompt()
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return sc.Err()
}

func (r *chatREPL) prompt() {
	if r.text {
		fmt.Fprint(r.out, mutedStyle.Render(fmt.Sprintf("[%d selected]", r.sess.Selection.Len()))+" > ")
	}
}

func (r *chatREPL) ask(ctx context.Context, question string) {
	before := r.sess.Transcript.Len()
	_, err := r.sess.Ask(ctx, question)
	switch {
	case errors.Is(err, session.ErrNoSelection):
		r.notice(selectPrompt)
		return
	case err != nil:
		r.notice("error: " + err.Error())
		return
	}
	msgs := r.sess.Messages()
	for _, m := range msgs[before:] {
		r.emit(m)
	}
}

func (r *chatREPL) emit(m model.ChatMessage) {
	if r.text {
		renderMessage(r.out, m)
		return
	}
	b, _ := json.Marshal(m)
	fmt.Fprintln(r.out, string(b))
}

func (r *chatREPL) notice(msg string) {
	if r.text {
		fmt.Fprintln(r.out, mutedStyle.Render(msg))
		return
	}
	b, _ := json.Marshal(map[string]string{"notice": msg})
	fmt.Fprintln(r.out, string(b))
}

// command runs a slash command and reports whether the loop should end.
func (r *chatREPL) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		r.notice(chatHelp)
	case "/select":
		r.sess.Selection.Replace(splitIDs(arg))
		r.notice("selected: " + strings.Join(r.sess.Selection.IDs(), ", "))
	case "/toggle":
		if arg == "" {
			r.notice("usage: /toggle <id>")
			break
		}
		if _, ok := r.sess.Catalog.Snapshot().Find(arg); !ok {
			r.notice("unknown dataset " + arg)
			break
		}
		if r.sess.Selection.Toggle(arg) {
			r.notice("selected " + arg)
		} else {
			r.notice("deselected " + arg)
		}
	case "/clear":
		r.sess.Selection.Clear()
		r.notice("selection cleared")
	case "/datasets":
		snap := r.sess.Catalog.Snapshot()
		if r.text {
			fmt.Fprintln(r.out, datasetTable(snap, r.sess.Selection.IDs()))
		} else {
			b, _ := json.Marshal(snap)
			fmt.Fprintln(r.out, string(b))
		}
	case "/refresh":
		snap, err := r.sess.Refresh(ctx, true)
		if err != nil {
			r.notice("Failed to load datasets: " + err.Error())
			break
		}
		r.notice(fmt.Sprintf("%d dataset(s) loaded", snap.Count))
	case "/user":
		if arg == "" {
			r.notice("user: " + r.sess.Identity.Get())
			break
		}
		if err := r.sess.Identity.Set(ctx, arg); err != nil {
			r.notice("error: " + err.Error())
			break
		}
		r.notice("user: " + r.sess.Identity.Get())
	default:
		r.notice("unknown command " + name + ", /help lists commands")
	}
	return false
}

func splitIDs(s string) []string {
	var ids []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if f = strings.TrimSpace(f); f != "" {
			ids = append(ids, f)
		}
	}
	return ids
}
