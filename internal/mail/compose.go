package mail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

const (
	replyPrefix   = "Re: "
	forwardPrefix = "Fwd: "

	forwardMarker = "---------- Forwarded message ---------"
	quoteLayout   = "Mon, Jan 2, 2006 at 3:04 PM"

	defaultMessageIDDomain = "tabmail.local"
)

// ErrNoRecipients is returned when a draft has nobody to send to.
var ErrNoRecipients = errors.New("mail: draft has no recipients")

// Draft is an outgoing plain-text message.
type Draft struct {
	From       string
	To         []string
	Cc         []string
	Bcc        []string
	Subject    string
	Body       string
	ThreadID   string
	InReplyTo  string   // Message-ID being answered, without angle brackets
	References []string // without angle brackets
}

// ReplySubject prefixes "Re: " unless the subject already has it.
func ReplySubject(subject string) string {
	return prefixOnce(subject, replyPrefix, "re:")
}

// ForwardSubject prefixes "Fwd: " unless the subject already has it.
func ForwardSubject(subject string) string {
	return prefixOnce(subject, forwardPrefix, "fwd:", "fw:")
}

func prefixOnce(subject, prefix string, existing ...string) string {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)
	for _, p := range existing {
		if strings.HasPrefix(lower, p) {
			return trimmed
		}
	}
	return prefix + trimmed
}

// Quote renders orig as a reply quotation.
func Quote(orig Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "On %s, %s wrote:\n", orig.Date.Format(quoteLayout), orig.From)
	for _, line := range strings.Split(strings.TrimRight(originalText(orig), "\n"), "\n") {
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> " + line + "\n")
	}
	return b.String()
}

// ForwardBlock renders orig as an inline forwarded message.
func ForwardBlock(orig Email) string {
	var b strings.Builder
	b.WriteString(forwardMarker + "\n")
	fmt.Fprintf(&b, "From: %s\n", orig.From)
	fmt.Fprintf(&b, "Date: %s\n", orig.Date.Format(quoteLayout))
	fmt.Fprintf(&b, "Subject: %s\n", orig.Subject)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(orig.To, ", "))
	b.WriteString("\n")
	b.WriteString(originalText(orig))
	return b.String()
}

func originalText(orig Email) string {
	if orig.Body != "" {
		return orig.Body
	}
	return orig.Snippet
}

// ReplyDraft answers orig from the given address. With all set, every other
// recipient of orig is copied, excluding from itself.
func ReplyDraft(orig Email, from, body string, all bool) Draft {
	d := Draft{
		From:      from,
		To:        []string{orig.From},
		Subject:   ReplySubject(orig.Subject),
		Body:      joinBody(body, Quote(orig)),
		ThreadID:  orig.ThreadID,
		InReplyTo: orig.MessageID,
	}

	d.References = append(d.References, orig.References...)
	if orig.MessageID != "" {
		d.References = append(d.References, orig.MessageID)
	}

	if all {
		skip := []string{from, orig.From}
		d.Cc = uniqueAddresses(append(append([]string(nil), orig.To...), orig.Cc...), skip)
	}
	return d
}

// ForwardDraft forwards orig to the given recipients.
func ForwardDraft(orig Email, from string, to []string, body string) Draft {
	return Draft{
		From:    from,
		To:      to,
		Subject: ForwardSubject(orig.Subject),
		Body:    joinBody(body, ForwardBlock(orig)),
	}
}

func joinBody(body, tail string) string {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return tail
	}
	return body + "\n\n" + tail
}

// uniqueAddresses drops duplicates and anything in skip, comparing bare
// addresses case-insensitively.
func uniqueAddresses(list, skip []string) []string {
	seen := make(map[string]bool, len(list)+len(skip))
	for _, s := range skip {
		seen[bareAddress(s)] = true
	}

	var out []string
	for _, a := range list {
		key := bareAddress(a)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func bareAddress(s string) string {
	if a, err := gomail.ParseAddress(s); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Build renders d as an RFC 5322 message.
func (d Draft) Build(now time.Time) ([]byte, error) {
	if len(d.To)+len(d.Cc)+len(d.Bcc) == 0 {
		return nil, ErrNoRecipients
	}

	var h gomail.Header
	h.SetDate(now)
	h.SetSubject(d.Subject)

	from, err := gomail.ParseAddress(d.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", d.From, err)
	}
	h.SetAddressList("From", []*gomail.Address{from})

	for key, list := range map[string][]string{"To": d.To, "Cc": d.Cc, "Bcc": d.Bcc} {
		if len(list) == 0 {
			continue
		}
		addrs, err := gomail.ParseAddressList(strings.Join(list, ", "))
		if err != nil {
			return nil, fmt.Errorf("invalid %s address: %w", key, err)
		}
		h.SetAddressList(key, addrs)
	}

	h.SetMessageID(uuid.NewString() + "@" + messageIDDomain(from.Address))
	if d.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{d.InReplyTo})
	}
	if len(d.References) > 0 {
		h.SetMsgIDList("References", d.References)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, d.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), nil
}

func messageIDDomain(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok && domain != "" {
		return domain
	}
	return defaultMessageIDDomain
}
