// Package mail maps the backend's label/thread/message resources onto the
// client's mailbox and email view model.
package mail

import (
	"time"

	"github.com/emersion/go-imap/v2"
)

// Mailbox is a label as shown in the sidebar.
type Mailbox struct {
	ID     string
	Name   string
	Role   imap.MailboxAttr // special-use role, empty for INBOX and user labels
	Unread int
	Total  int
	System bool
}

// Email is one message, or the latest message of a thread in list views.
type Email struct {
	ID           string
	ThreadID     string
	MessageID    string // RFC 5322 Message-ID without angle brackets
	From         string
	To           []string
	Cc           []string
	Subject      string
	Snippet      string
	Body         string
	HTMLBody     string
	Date         time.Time
	Flags        []imap.Flag
	Labels       []string
	MessageCount int
	References   []string
}

// HasFlag reports whether e carries flag.
func (e Email) HasFlag(flag imap.Flag) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Unread reports whether e has not been seen.
func (e Email) Unread() bool { return !e.HasFlag(imap.FlagSeen) }

// Starred reports whether e is starred.
func (e Email) Starred() bool { return e.HasFlag(imap.FlagFlagged) }

// Thread is a conversation, oldest message first.
type Thread struct {
	ID       string
	Subject  string
	Messages []Email
}

// Latest returns the most recent message, or the zero Email for an empty
// thread.
func (t Thread) Latest() Email {
	if len(t.Messages) == 0 {
		return Email{ThreadID: t.ID}
	}
	return t.Messages[len(t.Messages)-1]
}

// Page is one page of a thread listing.
type Page struct {
	Emails        []Email
	NextPageToken string
	Estimate      int
}

// ListOptions narrows a thread listing.
type ListOptions struct {
	PageToken string
	Query     string
}

// Sent identifies a message accepted by the backend.
type Sent struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}
