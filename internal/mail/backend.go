package mail

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	gomail "github.com/emersion/go-message/mail"
)

// System label IDs used by the backend.
const (
	LabelInbox     = "INBOX"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
	LabelSent      = "SENT"
	LabelDraft     = "DRAFT"
	LabelSpam      = "SPAM"
	LabelTrash     = "TRASH"
	LabelUnread    = "UNREAD"
)

type systemLabel struct {
	id   string
	name string
	role imap.MailboxAttr
}

// systemLabels is the sidebar order of the labels the client shows. Other
// system labels (UNREAD, CATEGORY_*, CHAT) are hidden.
var systemLabels = []systemLabel{
	{LabelInbox, "Inbox", ""},
	{LabelStarred, "Starred", imap.MailboxAttrFlagged},
	{LabelImportant, "Important", ""},
	{LabelSent, "Sent", imap.MailboxAttrSent},
	{LabelDraft, "Drafts", imap.MailboxAttrDrafts},
	{LabelSpam, "Spam", imap.MailboxAttrJunk},
	{LabelTrash, "Trash", imap.MailboxAttrTrash},
}

// ============================================================================
// Wire Types
// ============================================================================

type labelDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"` // "system" or "user"
	MessagesTotal  int    `json:"messagesTotal"`
	MessagesUnread int    `json:"messagesUnread"`
	ThreadsTotal   int    `json:"threadsTotal"`
	ThreadsUnread  int    `json:"threadsUnread"`
}

type labelsResponse struct {
	Labels []labelDTO `json:"labels"`
}

type threadListResponse struct {
	Threads            []threadDTO `json:"threads"`
	NextPageToken      string      `json:"nextPageToken"`
	ResultSizeEstimate int         `json:"resultSizeEstimate"`
}

type threadDTO struct {
	ID       string       `json:"id"`
	Snippet  string       `json:"snippet"`
	Messages []messageDTO `json:"messages"`
}

type messageDTO struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds"`
	Snippet      string   `json:"snippet"`
	InternalDate string   `json:"internalDate"` // unix milliseconds
	Payload      partDTO  `json:"payload"`
}

type partDTO struct {
	MimeType string      `json:"mimeType"`
	Filename string      `json:"filename"`
	Headers  []headerDTO `json:"headers"`
	Body     bodyDTO     `json:"body"`
	Parts    []partDTO   `json:"parts"`
}

type headerDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type bodyDTO struct {
	Size int    `json:"size"`
	Data string `json:"data"` // base64url
}

type modifyRequest struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

type sendRequest struct {
	Raw      string `json:"raw"` // base64url RFC 5322 message
	ThreadID string `json:"threadId,omitempty"`
}

// ============================================================================
// Mapping
// ============================================================================

func toMailbox(l labelDTO) Mailbox {
	mb := Mailbox{
		ID:     l.ID,
		Name:   l.Name,
		Unread: l.ThreadsUnread,
		Total:  l.ThreadsTotal,
		System: l.Type == "system",
	}
	if mb.Total == 0 && mb.Unread == 0 {
		mb.Unread, mb.Total = l.MessagesUnread, l.MessagesTotal
	}

	for _, sl := range systemLabels {
		if sl.id == l.ID {
			mb.Name = sl.name
			mb.Role = sl.role
			mb.System = true
		}
	}
	return mb
}

// flagsFromLabels derives IMAP-style flags. UNREAD is the absence of \Seen.
func flagsFromLabels(labels []string) []imap.Flag {
	seen := true
	var flags []imap.Flag
	for _, l := range labels {
		switch l {
		case LabelUnread:
			seen = false
		case LabelStarred:
			flags = append(flags, imap.FlagFlagged)
		case LabelDraft:
			flags = append(flags, imap.FlagDraft)
		case LabelImportant:
			flags = append(flags, imap.FlagImportant)
		case LabelSpam:
			flags = append(flags, imap.FlagJunk)
		}
	}
	if seen {
		flags = append([]imap.Flag{imap.FlagSeen}, flags...)
	}
	return flags
}

func toEmail(m messageDTO) Email {
	var h gomail.Header
	for _, hdr := range m.Payload.Headers {
		h.Add(hdr.Name, hdr.Value)
	}

	e := Email{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		From:     addressHeader(h, "From"),
		To:       addressList(h, "To"),
		Cc:       addressList(h, "Cc"),
		Snippet:  m.Snippet,
		Labels:   m.LabelIDs,
		Flags:    flagsFromLabels(m.LabelIDs),
	}

	if subject, err := h.Subject(); err == nil {
		e.Subject = subject
	} else {
		e.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil {
		e.MessageID = id
	}
	if refs, err := h.MsgIDList("References"); err == nil {
		e.References = refs
	}

	if ms, err := strconv.ParseInt(m.InternalDate, 10, 64); err == nil && ms > 0 {
		e.Date = time.UnixMilli(ms)
	} else if d, err := h.Date(); err == nil {
		e.Date = d
	}

	e.Body, e.HTMLBody = bodies(m.Payload)
	return e
}

func toThread(t threadDTO) Thread {
	th := Thread{ID: t.ID}
	for _, m := range t.Messages {
		e := toEmail(m)
		e.MessageCount = len(t.Messages)
		th.Messages = append(th.Messages, e)
	}
	if len(th.Messages) > 0 {
		th.Subject = th.Messages[0].Subject
	}
	return th
}

// summary is the list-view row for a thread: its latest message.
func summary(t threadDTO) Email {
	th := toThread(t)
	e := th.Latest()
	if e.Snippet == "" {
		e.Snippet = t.Snippet
	}
	e.MessageCount = len(t.Messages)
	return e
}

// bodies returns the first text/plain and text/html parts of a payload.
func bodies(p partDTO) (text, html string) {
	var walk func(p partDTO)
	walk = func(p partDTO) {
		if p.Filename != "" {
			return
		}
		mimeType := strings.ToLower(p.MimeType)
		switch {
		case strings.HasPrefix(mimeType, "multipart/"):
			for _, child := range p.Parts {
				walk(child)
			}
		case mimeType == "text/plain" && text == "":
			text = decodeData(p.Body.Data)
		case mimeType == "text/html" && html == "":
			html = decodeData(p.Body.Data)
		}
	}
	walk(p)
	return text, html
}

// decodeData decodes base64url with or without padding. Undecodable data
// reads as empty.
func decodeData(s string) string {
	s = strings.TrimRight(s, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatAddress(a *gomail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

func addressHeader(h gomail.Header, key string) string {
	list := addressList(h, key)
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func addressList(h gomail.Header, key string) []string {
	addrs, err := h.AddressList(key)
	if err != nil {
		if raw := strings.TrimSpace(h.Get(key)); raw != "" {
			return []string{raw}
		}
		return nil
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, formatAddress(a))
	}
	return out
}
