// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	chatBanner  = "Hey I'm Your Weather Agent I Can tell you the current weather of any city of Pakistan based on your request.\n(Type 'stop' or 'exit' to quit)\n"
	chatPrompt  = "Ask Me About Weather: "
	chatGoodbye = "👋 Goodbye! Weather Agent stopped."
	replyPrefix = "Weather Agent: "
)

func runChat(ctx context.Context, a *app, args []string) error {
	cmd := flag.NewFlagSet("chat", flag.ContinueOnError)
	sessionID := cmd.String("session", a.cfg.Session.ID, "Session identifier")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("chat", err.Error())
	}

	isTTY := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
	reply := func(ctx context.Context, input string) string {
		return a.orchestrator.Reply(ctx, *sessionID, input)
	}
	return chatLoop(ctx, os.Stdin, os.Stdout, reply, isTTY)
}

// isExitToken reports whether input ends the chat.
func isExitToken(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "stop", "exit":
		return true
	}
	return false
}

// chatLoop reads one message per line until an exit token, EOF or ctx is
// done. The banner and prompt are only shown on a terminal.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, reply func(context.Context, string) string, interactive bool) error {
	if interactive {
		fmt.Fprint(out, chatBanner+"\n")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		if interactive {
			fmt.Fprint(out, chatPrompt)
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			fmt.Fprintln(out, chatGoodbye)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if interactive {
				fmt.Fprintln(out)
			}
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			default:
			}
			return nil
		}

		if isExitToken(line) {
			fmt.Fprintln(out, chatGoodbye)
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fmt.Fprintln(out, replyPrefix+reply(ctx, line))
	}
}
