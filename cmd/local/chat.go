package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"portfolio-chat/internal/app"
	"portfolio-chat/internal/usecase"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Chat with the assistant in the terminal.

Type a message, or:
  :N      select suggestion N from the last reply
  /reset  start over
  exit    quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "tú> ",
			HistoryFile:     filepath.Join(os.TempDir(), ".portfolio_chat_history"),
			HistoryLimit:    100,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("initializing readline: %w", err)
		}
		defer rl.Close()

		repl := &replSession{svc: a.Chat, out: rl.Stdout()}
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			if !repl.handle(ctx, line) {
				return nil
			}
		}
	},
}

type chatter interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	SelectSuggestion(ctx context.Context, in usecase.SuggestionInput) (usecase.ChatOutput, error)
	Reset(ctx context.Context, sessionID string) (usecase.ChatOutput, error)
}

// replSession keeps the session id and the last suggestions between lines.
type replSession struct {
	svc       chatter
	out       io.Writer
	sessionID string
	last      usecase.ChatOutput
	basicMode bool
}

// handle processes one input line and reports whether to keep reading.
func (r *replSession) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch {
	case input == "":
		return true
	case input == "exit" || input == "quit":
		fmt.Fprintln(r.out, "¡Hasta pronto!")
		return false
	case input == "/reset":
		r.print(r.svc.Reset(ctx, r.sessionID))
	case strings.HasPrefix(input, ":"):
		n, err := strconv.Atoi(strings.TrimPrefix(input, ":"))
		chips := r.last.Reply.Suggestions
		if err != nil || n < 1 || n > len(chips) {
			fmt.Fprintf(r.out, "sugerencia inválida: %s\n", input)
			return true
		}
		chip := chips[n-1]
		r.print(r.svc.SelectSuggestion(ctx, usecase.SuggestionInput{SessionID: r.sessionID, Action: chip.Action, Text: chip.Input()}))
	default:
		r.print(r.svc.Chat(ctx, usecase.ChatInput{SessionID: r.sessionID, Message: input}))
	}
	return true
}

func (r *replSession) print(out usecase.ChatOutput, err error) {
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.sessionID = out.SessionID
	r.last = out

	if msg := strings.TrimSpace(out.Reply.Message); msg != "" {
		fmt.Fprintf(r.out, "\n%s\n", msg)
	}
	if out.Reply.Navigate != "" {
		fmt.Fprintf(r.out, "→ %s\n", out.Reply.Navigate)
	}
	for i, s := range out.Reply.Suggestions {
		fmt.Fprintf(r.out, "  [:%d] %s\n", i+1, s.Text)
	}
	if out.Status.UsingFallback && !r.basicMode {
		fmt.Fprintln(r.out, "(modo básico)")
	}
	r.basicMode = out.Status.UsingFallback
	fmt.Fprintln(r.out)
}
