// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agentchat/internal/logging"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/render"
	"github.com/jeranaias/agentchat/internal/session"
)

func newAskCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Send one message and print the reply",
		Long: `Send one message to the agent and stream its reply to stdout.

The reply is rendered as markdown when stdout is a terminal and streamed as
raw text otherwise. With no arguments, or "-", the message is read from stdin.`,
		Example: `  agentchat ask "summarize my unread mail"
  echo "what's on today?" | agentchat ask
  agentchat --demo ask hello`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := askText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runAsk(cmd, o, text)
		},
	}
}

// askText joins the arguments, or reads stdin when there are none.
func askText(stdin io.Reader, args []string) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" || text == "-" {
		if f, ok := stdin.(*os.File); ok && f == os.Stdin && IsStdinTTY() {
			return "", NewUsageError("ask needs a question (argument or stdin)")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", &CommandError{Command: "ask", Action: "read", Reason: "stdin", Err: err}
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return "", NewUsageError("ask needs a question (argument or stdin)")
	}
	return text, nil
}

func runAsk(cmd *cobra.Command, o *globalOptions, text string) error {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return configError("logging", err)
	}
	defer closer.Close()

	transport, label, err := buildTransport(cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tty := IsTerminal(out)

	// A terminal gets the finished reply as markdown; anything else gets
	// the raw deltas as they arrive.
	var cache *render.Cache
	if tty {
		wrap := cfg.Render.WordWrap
		if wrap == 0 {
			wrap = TerminalWidth(out) - 2
		}
		cache = render.NewCache(converterOrPlain(cfg.GlamourStyle(), wrap, logger), 16)
	}

	printer := newReplyPrinter(out, !tty)
	ctrl := session.New(transport, cfg.Agent.SessionID,
		session.WithLogger(logger),
		session.WithNotifier(printer.notify),
		session.WithRenderCache(cache),
	)
	printer.ctrl = ctrl
	defer ctrl.Close()

	logger.Debug().Str("transport", label).Msg("asking")
	if err := ctrl.Send(text); err != nil {
		return &CommandError{Command: "ask", Action: "send", Reason: "message rejected", Err: err}
	}

	select {
	case <-printer.done:
	case <-cmd.Context().Done():
		ctrl.Stop()
		printer.finish()
		return cmd.Context().Err()
	}

	printer.finish()
	if tty {
		printer.printRendered()
	}

	if ctrl.Status() == session.StatusError {
		return &CommandError{Command: "ask", Action: "stream", Reason: "agent reply failed", Err: ctrl.LastError()}
	}
	return nil
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter writes the agent's reply as the controller reports changes.
type replyPrinter struct {
	w      io.Writer
	stream bool
	ctrl   *session.Controller

	mu      sync.Mutex
	reply   string // id of the message being printed
	printed string

	done chan struct{}
	once sync.Once
}

func newReplyPrinter(w io.Writer, stream bool) *replyPrinter {
	return &replyPrinter{w: w, stream: stream, done: make(chan struct{})}
}

// notify is the controller's Notifier.
func (p *replyPrinter) notify(ch session.Change) {
	switch ch.Kind {
	case session.ChangeTranscript:
		p.flush()
	case session.ChangeStatus:
		if !ch.Status.Busy() {
			p.flush()
			p.once.Do(func() { close(p.done) })
		}
	}
}

// flush writes whatever reply text arrived since the last call.
func (p *replyPrinter) flush() {
	if !p.stream || p.ctrl == nil {
		return
	}
	msg, ok := lastReply(p.ctrl.Snapshot())
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.ID != p.reply {
		p.reply, p.printed = msg.ID, ""
	}
	text := msg.Text()
	if len(text) <= len(p.printed) || !strings.HasPrefix(text, p.printed) {
		return
	}
	fmt.Fprint(p.w, text[len(p.printed):])
	p.printed = text
}

// finish ends the streamed output with a newline.
func (p *replyPrinter) finish() {
	p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream && p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		fmt.Fprintln(p.w)
	}
}

// printRendered writes the finished reply through the render cache.
func (p *replyPrinter) printRendered() {
	msg, ok := lastReply(p.ctrl.Snapshot())
	if !ok {
		return
	}
	for i, part := range msg.Parts {
		if part.IsText() {
			fmt.Fprintln(p.w, p.ctrl.Render(msg.ID, i, part.Text))
		}
	}
}

func lastReply(msgs []model.Message) (model.Message, bool) {
	if len(msgs) == 0 {
		return model.Message{}, false
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant {
		return model.Message{}, false
	}
	return last, true
}
