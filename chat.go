package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"go-rag-qa/logging"
	"go-rag-qa/rag"
)

// runChat reads questions line by line until exit, quit, end of input or
// cancellation of ctx. A failed question is reported and the session
// continues.
func runChat(ctx context.Context, p *rag.Pipeline, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Starting chat session. Type 'exit' or 'quit' to end.")
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines, readErr := readLines(readCtx, in)
	for {
		fmt.Fprint(out, "\nAsk a question: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nExiting chat session.")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
			default:
			}
			fmt.Fprintln(out, "\nExiting chat session.")
			return nil
		}
		query := strings.TrimSpace(line)
		switch strings.ToLower(query) {
		case "exit", "quit":
			return nil
		case "":
			continue
		}
		if err := runQuery(ctx, p, out, query); err != nil {
			logging.FromContext(ctx).Error("question failed", zap.String("query", query), zap.Error(err))
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// readLines scans in on its own goroutine so a blocked read never holds up
// cancellation. The scan error, if any, is sent before lines is closed.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}
