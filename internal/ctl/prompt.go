package ctl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter asks questions on an interactive terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line asks a free-form question and returns def on an empty answer.
func (p *prompter) line(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "   > %s (default: %q): ", question, def)
	} else {
		fmt.Fprintf(p.out, "   > %s: ", question)
	}
	s, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if s = strings.TrimSpace(s); s == "" {
		return def, nil
	}
	return s, nil
}

// choose lists items and loops until a valid 1-based index is entered.
func (p *prompter) choose(title string, items []string) (string, error) {
	fmt.Fprintf(p.out, "\n--- %s ---\n", title)
	for i, it := range items {
		fmt.Fprintf(p.out, "%d. %s\n", i+1, it)
	}
	for {
		fmt.Fprintf(p.out, "Select (1-%d): ", len(items))
		s, err := p.in.ReadString('\n')
		if err != nil && strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("no selection: %w", err)
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(s))
		if convErr == nil && n >= 1 && n <= len(items) {
			return items[n-1], nil
		}
		fmt.Fprintf(p.out, "Invalid choice; enter a number between 1 and %d.\n", len(items))
	}
}
