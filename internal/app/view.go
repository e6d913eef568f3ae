package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aussiebroadwan/tabmail/internal/history"
	"github.com/aussiebroadwan/tabmail/internal/mail"
	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
)

var (
	colorAccent = lipgloss.Color("39")
	colorMuted  = lipgloss.Color("245")
	colorWarn   = lipgloss.Color("214")
	colorStar   = lipgloss.Color("220")
)

// view renders command output. The renderer is bound to the output writer so
// colour is only emitted on a terminal.
type view struct {
	out io.Writer

	title  lipgloss.Style
	muted  lipgloss.Style
	bold   lipgloss.Style
	warn   lipgloss.Style
	star   lipgloss.Style
	header lipgloss.Style
}

func newView(out io.Writer) *view {
	r := lipgloss.NewRenderer(out)
	return &view{
		out:    out,
		title:  r.NewStyle().Bold(true).Foreground(colorAccent),
		muted:  r.NewStyle().Foreground(colorMuted),
		bold:   r.NewStyle().Bold(true),
		warn:   r.NewStyle().Foreground(colorWarn),
		star:   r.NewStyle().Foreground(colorStar),
		header: r.NewStyle().Bold(true).Underline(true),
	}
}

func (v *view) println(s string) {
	fmt.Fprintln(v.out, s)
}

func (v *view) info(format string, args ...any) {
	v.println(fmt.Sprintf(format, args...))
}

func (v *view) warning(msg string) {
	v.println(v.warn.Render(msg))
}

func (v *view) user(u *authsdk.User) {
	v.println(v.title.Render(u.Email))
	rows := [][2]string{
		{"ID", u.ID},
		{"Name", u.Name},
		{"Provider", u.Provider},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		v.println(v.muted.Render(fmt.Sprintf("%-9s", r[0])) + r[1])
	}
}

func (v *view) mailboxes(boxes []mail.Mailbox) {
	width := 0
	for _, b := range boxes {
		width = max(width, lipgloss.Width(b.Name))
	}

	for _, b := range boxes {
		name := fmt.Sprintf("%-*s", width, b.Name)
		unread := ""
		if b.Unread > 0 {
			name = v.bold.Render(name)
			unread = "  " + v.title.Render(fmt.Sprintf("%d unread", b.Unread))
		}
		v.println(name + "  " + v.muted.Render(fmt.Sprintf("%5d", b.Total)) + unread + v.muted.Render("  "+b.ID))
	}
}

func (v *view) threads(page *mail.Page, counts map[string]int, now time.Time) {
	if len(page.Emails) == 0 {
		v.println(v.muted.Render("No conversations."))
		return
	}

	for _, e := range page.Emails {
		marker := " "
		if e.Starred() {
			marker = v.star.Render("*")
		}

		from := truncate(displayName(e.From), 24)
		subject := e.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		if n := counts[e.ThreadID]; n > 1 {
			subject = fmt.Sprintf("%s (%d)", subject, n)
		} else if e.MessageCount > 1 {
			subject = fmt.Sprintf("%s (%d)", subject, e.MessageCount)
		}

		row := fmt.Sprintf("%-24s  %s", from, subject)
		if e.Unread() {
			row = v.bold.Render(row)
		}
		v.println(fmt.Sprintf("%s %s  %s  %s", marker, row,
			v.muted.Render(shortDate(e.Date, now)), v.muted.Render(e.ThreadID)))
	}

	if page.NextPageToken != "" {
		v.println(v.muted.Render("More: --page " + page.NextPageToken))
	}
}

func (v *view) thread(t *mail.Thread) {
	v.println(v.title.Render(t.Subject))
	for _, m := range t.Messages {
		v.println("")
		v.println(v.header.Render(m.From))
		v.println(v.muted.Render("To:   " + strings.Join(m.To, ", ")))
		if len(m.Cc) > 0 {
			v.println(v.muted.Render("Cc:   " + strings.Join(m.Cc, ", ")))
		}
		if !m.Date.IsZero() {
			v.println(v.muted.Render("Date: " + m.Date.Format("Mon, Jan 2, 2006 at 3:04 PM")))
		}
		v.println("")

		body := m.Body
		if body == "" {
			body = m.Snippet
		}
		v.println(strings.TrimRight(body, "\n"))
	}
}

func (v *view) history(entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		v.println(v.muted.Render("No recent searches."))
		return
	}
	for _, e := range entries {
		v.println(fmt.Sprintf("%-40s  %s", e.Query, v.muted.Render(shortDate(e.UsedAt, now))))
	}
}

// shortDate shows the time for today, month and day this year, and the full
// date otherwise.
func shortDate(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	switch {
	case t.Year() == now.Year() && t.YearDay() == now.YearDay():
		return t.Format("3:04 PM")
	case t.Year() == now.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("1/2/06")
	}
}

// displayName returns the name part of an address, or the address itself.
func displayName(addr string) string {
	if i := strings.Index(addr, "<"); i > 0 {
		return strings.Trim(strings.TrimSpace(addr[:i]), `"`)
	}
	return addr
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
