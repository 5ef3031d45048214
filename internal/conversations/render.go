package conversations

import (
	"fmt"
	"io"
	"strings"

	"github.com/hetulpatel/dbcheck/internal/queryrunner"
)

const (
	timeLayout = "02.01.2006 15:04"
	lineWidth  = 60

	labelClient = "[CLIENT]"
	labelBot    = "[BOT]"
)

var (
	heavyRule = strings.Repeat("═", lineWidth)
	lightRule = strings.Repeat("─", lineWidth)
)

// RoleLabel maps a history role to its display label.
func RoleLabel(role string) string {
	if role == RoleUser {
		return labelClient
	}
	return labelBot
}

// Render prints the conversation report.
func Render(w io.Writer, convs []Conversation) error {
	p := &printer{w: w}
	p.printf("\nConversations found: %d\n", len(convs))
	for _, c := range convs {
		p.printf("\n%s\n", heavyRule)
		p.printf("CLIENT: %s\n", c.UserID)
		p.printf("STAGE: %s\n", c.Stage)
		p.printf("LAST ACTIVITY: %s\n", formatTime(c))
		p.printf("%s\n", lightRule)
		for _, m := range c.History {
			p.printf("%s: %s\n", RoleLabel(m.Role), strings.TrimSpace(m.Content))
		}
		p.printf("%s\n", heavyRule)
	}
	return p.err
}

// RenderResult prints whatever a Run produced. A Failure prints only its message.
func RenderResult(w io.Writer, res queryrunner.Result) error {
	switch r := res.(type) {
	case queryrunner.Rows:
		convs, err := FromRows(r)
		if err != nil {
			return err
		}
		return Render(w, convs)
	case queryrunner.Ack:
		_, err := fmt.Fprintln(w, r.String())
		return err
	case queryrunner.Failure:
		_, err := fmt.Fprintln(w, r.Message())
		return err
	default:
		return fmt.Errorf("unexpected result %T", res)
	}
}

func formatTime(c Conversation) string {
	if c.UpdatedAt.IsZero() {
		return "-"
	}
	return c.UpdatedAt.Format(timeLayout)
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
