package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/mcp"
	"github.com/hurttlocker/leasebot/internal/respond"
	"github.com/hurttlocker/leasebot/internal/session"
)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	sessionFlag := fs.String("session", "", "Session id (default: random)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("usage: leasebot chat [--session <id>]")
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	id := strings.TrimSpace(*sessionFlag)
	if id == "" {
		id = uuid.NewString()
	}
	return chatLoop(ctx, a.engine, id, os.Stdin, os.Stdout)
}

// chatLoop runs one conversation until EOF or /quit. An existing session
// is resumed; an unknown one is started.
//
// Commands: /profile prints the extracted lead, /reset starts over.
func chatLoop(ctx context.Context, engine *session.Engine, id string, in io.Reader, out io.Writer) error {
	opening, err := openingMessage(ctx, engine, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n\n", opening)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/profile":
			p, err := engine.Profile(ctx, id)
			if err != nil {
				return fmt.Errorf("reading profile: %w", err)
			}
			p.History = nil
			data, _ := json.MarshalIndent(p, "", "  ")
			fmt.Fprintf(out, "%s\n\n", data)
			continue
		case "/reset":
			welcome, err := engine.Start(ctx, id)
			if err != nil {
				return fmt.Errorf("resetting session: %w", err)
			}
			fmt.Fprintf(out, "%s\n\n", welcome.Content)
			continue
		}

		reply, err := engine.Send(ctx, id, line)
		if err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
		fmt.Fprintf(out, "%s\n\n", reply.Content)
	}
	fmt.Fprintln(out)
	return sc.Err()
}

// openingMessage resumes id by replaying its last assistant message, or
// starts the session when it does not exist yet.
func openingMessage(ctx context.Context, engine *session.Engine, id string) (string, error) {
	hist, err := engine.History(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		welcome, err := engine.Start(ctx, id)
		if err != nil {
			return "", fmt.Errorf("starting session: %w", err)
		}
		return welcome.Content, nil
	case err != nil:
		return "", fmt.Errorf("resuming session: %w", err)
	}
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Role == lead.RoleAssistant {
			return hist[i].Content, nil
		}
	}
	return respond.WelcomeMessage, nil
}

func runMCP(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: leasebot mcp")
	}

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	cfg := mcp.ServerConfig{
		Engine:   a.engine,
		Searcher: a.searcher,
		Outbox:   a.outbox,
		Version:  version,
	}
	if a.backend != nil {
		cfg.Actions = a.backend
	}
	return server.ServeStdio(mcp.NewServer(cfg))
}
