package credentials

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompter reads answers from an interactive console. Password input
// goes through the terminal in no-echo mode.
type TerminalPrompter struct {
	reader *bufio.Reader
	output io.Writer
}

// NewTerminalPrompter returns a prompter over stdin/stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		reader: bufio.NewReader(os.Stdin),
		output: os.Stdout,
	}
}

// Confirm asks a yes/no question and accepts y/yes (case-insensitive) as yes.
func (p *TerminalPrompter) Confirm(_ context.Context, question string) (bool, error) {
	fmt.Fprintf(p.output, "%s [y/N]: ", question)

	line, err := p.reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes", nil
}

// ReadLine asks for visible input and returns the trimmed answer.
func (p *TerminalPrompter) ReadLine(_ context.Context, question string) (string, error) {
	fmt.Fprintf(p.output, "%s: ", question)

	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// ReadSecret asks for input with terminal echo disabled.
func (p *TerminalPrompter) ReadSecret(_ context.Context, question string) (string, error) {
	fmt.Fprintf(p.output, "%s: ", question)

	secret, err := term.ReadPassword(int(os.Stdin.Fd()))

	// ReadPassword swallows the operator's newline.
	fmt.Fprintln(p.output)

	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}

	return strings.TrimSpace(string(secret)), nil
}
