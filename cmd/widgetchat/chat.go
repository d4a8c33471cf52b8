package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-widget-chat/internal/widgetclient"
)

func newChatCmd() *cobra.Command {
	var (
		baseURL   string
		chatbotID string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a chatbot from the terminal, as the widget would",
		Long: "Reads one message per line from stdin and prints the streamed reply.\n" +
			"Commands: /rate <1-5> [feedback], /history, /quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			c := widgetclient.New(baseURL, chatbotID)
			return runChat(cmd, c, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080/api/v1", "API base URL")
	cmd.Flags().StringVar(&chatbotID, "chatbot", "", "chatbot ID")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (random when empty)")
	_ = cmd.MarkFlagRequired("chatbot")
	return cmd
}

func runChat(cmd *cobra.Command, c *widgetclient.Client, sessionID string, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()

	cfg, err := c.Config(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (session %s)\n", cfg.Name, sessionID)
	if cfg.WelcomeMessage != "" {
		fmt.Fprintf(out, "< %s\n", cfg.WelcomeMessage)
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/history":
			printHistory(cmd, c, sessionID, out)
			continue
		case strings.HasPrefix(line, "/rate"):
			rate(cmd, c, sessionID, strings.TrimSpace(strings.TrimPrefix(line, "/rate")), out)
			continue
		}

		fmt.Fprint(out, "< ")
		res, err := c.Chat(ctx, widgetclient.ChatRequest{
			SessionID:      sessionID,
			Message:        line,
			IdempotencyKey: uuid.NewString(),
		}, func(frag string) { fmt.Fprint(out, frag) })
		fmt.Fprintln(out)

		var se *widgetclient.StreamError
		var ae *widgetclient.APIError
		switch {
		case err == nil:
			fmt.Fprintf(out, "  (%d ms)\n", res.ResponseTimeMs)
		case errors.As(err, &se):
			fmt.Fprintf(out, "! %s\n", se.Message)
		case errors.Is(err, widgetclient.ErrIncompleteStream):
			fmt.Fprintln(out, "! connection closed before the reply finished")
		case errors.As(err, &ae):
			fmt.Fprintf(out, "! %s\n", ae.Message)
		default:
			return err
		}
	}
}

func rate(cmd *cobra.Command, c *widgetclient.Client, sessionID, args string, out io.Writer) {
	num, feedback, _ := strings.Cut(args, " ")
	n, err := strconv.Atoi(num)
	if err != nil {
		fmt.Fprintln(out, "! usage: /rate <1-5> [feedback]")
		return
	}
	r, err := c.Rate(cmd.Context(), sessionID, n, strings.TrimSpace(feedback))
	if err != nil {
		fmt.Fprintf(out, "! %v\n", err)
		return
	}
	fmt.Fprintf(out, "  rated %d/5\n", r.Rating)
}

func printHistory(cmd *cobra.Command, c *widgetclient.Client, sessionID string, out io.Writer) {
	for page := 1; ; page++ {
		p, err := c.History(cmd.Context(), sessionID, page, 100)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			return
		}
		for _, m := range p.Messages {
			fmt.Fprintf(out, "  [%s] %s\n", m.Role, m.Content)
		}
		if !p.Pagination.HasNext {
			return
		}
	}
}
