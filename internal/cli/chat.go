package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flynn-ai/joat/internal/agent"
	"github.com/flynn-ai/joat/internal/config"
	"github.com/flynn-ai/joat/internal/logging"
)

const (
	historyTurns   = 20
	historyPreview = 100
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Besides queries, the session understands:

  history          show the last turns of every model in this session
  clear            forget this session's history
  status           show backend and profile status
  profile <name>   switch profile (lightweight, comprehensive, auto)
  resume           reload this session from the archive
  quit             leave`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, chatSession)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id to use; a new one is generated if empty")
}

func runChat(cmd *cobra.Command, sessionID string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newAgent(ctx, cfg, logging.Log)
	if err != nil {
		return err
	}
	defer a.Close()

	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	return (&repl{
		agent:   a,
		session: sessionID,
		in:      cmd.InOrStdin(),
		out:     cmd.OutOrStdout(),
		retries: retries,
	}).run(ctx)
}

// repl is one interactive session over an agent.
type repl struct {
	agent   *agent.Agent
	session string
	in      io.Reader
	out     io.Writer
	retries int
}

func (r *repl) run(ctx context.Context) error {
	sel := r.agent.Selection()
	fmt.Fprintf(r.out, "joat ready (profile: %s, session: %s)\n", sel.Profile, r.session)
	fmt.Fprintln(r.out, "Type 'quit' to exit, 'history' to view conversation history.")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		done, err := r.handle(ctx, line)
		if err != nil {
			return err
		}
		if done {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
	}
}

// handle processes one input line and reports whether the session ended.
// Query failures are printed, not returned, so the session continues.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		if len(fields) == 1 {
			return true, nil
		}
	case "history":
		if len(fields) == 1 {
			r.printHistory()
			return false, nil
		}
	case "clear":
		if len(fields) == 1 {
			if err := r.agent.ClearHistory(ctx, r.session, ""); err != nil {
				fmt.Fprintln(r.out, formatError(err))
			} else {
				fmt.Fprintln(r.out, "Conversation history cleared.")
			}
			return false, nil
		}
	case "status":
		if len(fields) == 1 {
			printStatus(r.out, r.agent.Status(ctx))
			return false, nil
		}
	case "resume":
		if len(fields) == 1 {
			n, err := r.agent.ResumeSession(ctx, r.session)
			if err != nil {
				fmt.Fprintln(r.out, formatError(err))
			} else {
				fmt.Fprintf(r.out, "Restored %d turns.\n", n)
			}
			return false, nil
		}
	case "profile":
		if len(fields) == 2 {
			sel, err := r.agent.SwitchProfile(ctx, config.NormalizeProfile(fields[1]))
			if err != nil {
				fmt.Fprintln(r.out, formatError(err))
			} else {
				fmt.Fprintf(r.out, "Active profile: %s (%s)\n", sel.Profile, sel.Reason)
			}
			return false, nil
		}
	}

	resp, err := ask(ctx, r.agent, line, r.session, r.retries)
	if err != nil {
		fmt.Fprintln(r.out, formatError(err))
		return false, nil
	}

	fmt.Fprintf(r.out, "Assistant: %s\n", resp.Text)
	fmt.Fprintf(r.out, "[%s via %s, %s]\n", resp.Category, resp.Model, resp.Latency.Round(time.Millisecond))
	return false, nil
}

func (r *repl) printHistory() {
	histories := r.agent.Histories(r.session)
	if len(histories) == 0 {
		fmt.Fprintln(r.out, "No conversation history.")
		return
	}

	models := make([]string, 0, len(histories))
	for id := range histories {
		models = append(models, id)
	}
	sort.Strings(models)

	for _, id := range models {
		turns := histories[id]
		if len(turns) > historyTurns {
			turns = turns[len(turns)-historyTurns:]
		}
		fmt.Fprintf(r.out, "\n== %s ==\n", id)
		for _, t := range turns {
			fmt.Fprintf(r.out, "%s: %s\n", t.Role, preview(t.Content, historyPreview))
		}
	}
}

func preview(s string, n int) string {
	return logging.Truncate(strings.ReplaceAll(s, "\n", " "), n)
}
