// Package cli provides terminal prompts for the setup wizard.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0EA5E9"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
)

// Prompter reads answers from In and writes questions to Out.
type Prompter struct {
	In      io.Reader
	Out     io.Writer
	scanner *bufio.Scanner
}

func (p *Prompter) readLine() string {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

// Section prints a heading that groups the questions after it.
func (p *Prompter) Section(title string) {
	_, _ = fmt.Fprintf(p.Out, "\n%s\n", headingStyle.Render(title))
}

// Note prints indented helper text.
func (p *Prompter) Note(format string, args ...any) {
	_, _ = fmt.Fprintf(p.Out, "  %s\n", noteStyle.Render(fmt.Sprintf(format, args...)))
}

// Done prints a success line.
func (p *Prompter) Done(format string, args ...any) {
	_, _ = fmt.Fprintf(p.Out, "  %s\n", okStyle.Render(fmt.Sprintf(format, args...)))
}

// Ask reads one line, returning defaultVal when the answer is blank.
func (p *Prompter) Ask(question, defaultVal string) string {
	if defaultVal != "" {
		_, _ = fmt.Fprintf(p.Out, "  %s [%s]: ", question, defaultVal)
	} else {
		_, _ = fmt.Fprintf(p.Out, "  %s: ", question)
	}
	if line := p.readLine(); line != "" {
		return line
	}
	return defaultVal
}

// AskSecret reads a line without echo when In is a terminal. A blank answer
// returns fallback, which is never printed.
func (p *Prompter) AskSecret(question, fallback string) string {
	hint := ""
	if fallback != "" {
		hint = " (blank to generate)"
	}
	_, _ = fmt.Fprintf(p.Out, "  %s%s: ", question, hint)

	var ans string
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(p.Out)
		if err == nil {
			ans = strings.TrimSpace(string(b))
		}
	} else {
		ans = p.readLine()
	}
	if ans == "" {
		return fallback
	}
	return ans
}

// AskList reads a comma-separated list.
func (p *Prompter) AskList(question string, defaultVals []string) []string {
	ans := p.Ask(question, strings.Join(defaultVals, ","))
	var out []string
	for _, v := range strings.Split(ans, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Choose presents numbered options and returns the selected one.
func (p *Prompter) Choose(question string, options []string, defaultIdx int) string {
	_, _ = fmt.Fprintf(p.Out, "  %s\n", question)
	for i, opt := range options {
		marker := "   "
		if i == defaultIdx {
			marker = " > "
		}
		_, _ = fmt.Fprintf(p.Out, "  %s%d) %s\n", marker, i+1, opt)
	}
	for {
		n, err := strconv.Atoi(p.Ask("Choice", strconv.Itoa(defaultIdx+1)))
		if err == nil && n >= 1 && n <= len(options) {
			return options[n-1]
		}
		_, _ = fmt.Fprintf(p.Out, "  Please enter a number between 1 and %d.\n", len(options))
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(question string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	ans := p.Ask(fmt.Sprintf("%s [%s]", question, hint), "")
	if ans == "" {
		return defaultYes
	}
	return strings.HasPrefix(strings.ToLower(ans), "y")
}
