package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fwojciec/aide"
	"github.com/fwojciec/aide/agent"
	aidejson "github.com/fwojciec/aide/json"
	"github.com/mattn/go-runewidth"
)

const defaultWidth = 80

// repl reads user lines and prints the assistant's answers. Tool progress
// and errors go to errOut so they stay apart from the answers.
type repl struct {
	session *agent.Session
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	width   int
}

func newREPL(s *agent.Session, in io.Reader, out, errOut io.Writer) *repl {
	return &repl{session: s, in: in, out: out, errOut: errOut, width: terminalWidth()}
}

// terminalWidth reads COLUMNS, falling back to 80.
func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return defaultWidth
}

func (r *repl) run(ctx context.Context) error {
	r.greet()

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
		case line == "quit" || line == "exit" || line == "q":
			return nil
		case line == "/transcript":
			r.transcript()
		case line == "/save" || strings.HasPrefix(line, "/save "):
			r.save(strings.TrimSpace(strings.TrimPrefix(line, "/save")))
		case line == "/tools":
			printTools(r.out, r.session)
		default:
			if err := r.chat(ctx, line); err != nil {
				return err
			}
		}
	}
}

// chat runs one turn. It returns an error only when the session can no
// longer be used.
func (r *repl) chat(ctx context.Context, line string) error {
	reply, err := r.session.Chat(ctx, line, agent.WithEventHandler(r.progress))
	switch {
	case err == nil:
		fmt.Fprintln(r.out, reply)
		return nil
	case errors.Is(err, aide.ErrSessionClosed) && ctx.Err() != nil:
		fmt.Fprintln(r.errOut, "interrupted")
		return nil
	case errors.Is(err, aide.ErrSessionClosed), errors.Is(err, aide.ErrMalformedTranscript):
		return err
	default:
		fmt.Fprintf(r.errOut, "error: %v\n", err)
		return nil
	}
}

func (r *repl) greet() {
	fmt.Fprintf(r.out, "aide %s. Ask about your email or calendar; /tools, /transcript, /save <path>, quit.\n", aide.Version)
	report := r.session.Report()
	for name, err := range report.Failed {
		fmt.Fprintf(r.errOut, "warning: %s unavailable: %v\n", name, err)
	}
	for _, name := range report.Empty {
		fmt.Fprintf(r.errOut, "warning: %s offers no tools\n", name)
	}
	if r.session.Status() == aide.InitFailed {
		fmt.Fprintln(r.errOut, "warning: no tools available, answers will not use your data")
	}
}

// progress prints one line per tool call, cut to the terminal width.
func (r *repl) progress(evt aide.Event) {
	var line string
	switch e := evt.(type) {
	case aide.EventToolCallBegin:
		line = "  … " + e.Name
	case aide.EventToolResult:
		if e.Result.IsError {
			line = fmt.Sprintf("  ✗ %s: %s", e.Result.ToolName, e.Result.Content)
		} else {
			line = fmt.Sprintf("  ✓ %s (%s)", e.Result.ToolName, e.Duration.Round(time.Millisecond))
		}
	default:
		return
	}
	line = strings.ReplaceAll(line, "\n", " ")
	fmt.Fprintln(r.errOut, runewidth.Truncate(line, r.width, "…"))
}

func (r *repl) transcript() {
	data, err := aidejson.MarshalConversation(r.session.Conversation())
	if err != nil {
		fmt.Fprintf(r.errOut, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, string(data))
}

func (r *repl) save(path string) {
	if path == "" {
		fmt.Fprintln(r.errOut, "error: usage: /save <path>")
		return
	}
	if err := aidejson.Save(path, r.session.Conversation()); err != nil {
		fmt.Fprintf(r.errOut, "error: save transcript: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Transcript saved to %s\n", path)
}

// printTools lists the catalog with the backend serving each tool.
func printTools(w io.Writer, s *agent.Session) {
	descs := s.Tools()
	if len(descs) == 0 {
		fmt.Fprintln(w, "No tools available.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tBACKEND\tDESCRIPTION")
	for _, d := range descs {
		desc, _, _ := strings.Cut(d.Description, "\n")
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Backend, desc)
	}
	_ = tw.Flush()
}
