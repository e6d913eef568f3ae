package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
)

const defaultPrefetchLimit = 4

// Doer performs a backend request. *authsdk.SDKClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req authsdk.Request, out any) error
}

// Service is the mail façade over the backend.
type Service struct {
	api    Doer
	logger *slog.Logger

	// PrefetchLimit bounds concurrent thread fetches in PrefetchThreads.
	PrefetchLimit int

	now func() time.Time
}

// NewService returns a Service that calls the backend through api.
func NewService(api Doer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:           api,
		logger:        logger,
		PrefetchLimit: defaultPrefetchLimit,
		now:           time.Now,
	}
}

// ============================================================================
// Reading
// ============================================================================

// ListMailboxes returns the visible system labels in sidebar order followed
// by user labels sorted by name.
func (s *Service) ListMailboxes(ctx context.Context) ([]Mailbox, error) {
	var resp labelsResponse
	if err := s.api.Do(ctx, authsdk.Request{Path: "/labels"}, &resp); err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	byID := make(map[string]labelDTO, len(resp.Labels))
	var user []Mailbox
	for _, l := range resp.Labels {
		if l.Type == "user" {
			user = append(user, toMailbox(l))
			continue
		}
		byID[l.ID] = l
	}

	boxes := make([]Mailbox, 0, len(systemLabels)+len(user))
	for _, sl := range systemLabels {
		if l, ok := byID[sl.id]; ok {
			boxes = append(boxes, toMailbox(l))
		}
	}

	sort.SliceStable(user, func(i, j int) bool {
		return strings.ToLower(user[i].Name) < strings.ToLower(user[j].Name)
	})

	return append(boxes, user...), nil
}

// ListThreads returns one page of threads in a mailbox.
func (s *Service) ListThreads(ctx context.Context, mailboxID string, opts ListOptions) (*Page, error) {
	query := url.Values{}
	if opts.PageToken != "" {
		query.Set("pageToken", opts.PageToken)
	}
	if opts.Query != "" {
		query.Set("q", opts.Query)
	}

	var resp threadListResponse
	err := s.api.Do(ctx, authsdk.Request{
		Path:  "/labels/" + url.PathEscape(mailboxID) + "/threads",
		Query: query,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list threads in %s: %w", mailboxID, err)
	}

	page := &Page{
		Emails:        make([]Email, 0, len(resp.Threads)),
		NextPageToken: resp.NextPageToken,
		Estimate:      resp.ResultSizeEstimate,
	}
	for _, t := range resp.Threads {
		page.Emails = append(page.Emails, summary(t))
	}
	return page, nil
}

// GetThread returns a thread with every message.
func (s *Service) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var resp threadDTO
	if err := s.api.Do(ctx, authsdk.Request{Path: threadPath(threadID)}, &resp); err != nil {
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}

	t := toThread(resp)
	if t.ID == "" {
		t.ID = threadID
	}
	return &t, nil
}

// PrefetchThreads loads thread details in the background, at most
// PrefetchLimit at a time. apply is called for each loaded thread, one at a
// time, only while token is still the current selection; results for a stale
// selection are dropped. Individual failures are logged and skipped; an
// expired session aborts the prefetch.
func (s *Service) PrefetchThreads(
	ctx context.Context,
	sel *Selection,
	token uuid.UUID,
	threadIDs []string,
	apply func(*Thread),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.PrefetchLimit, 1))

	var applyMu sync.Mutex
	for _, id := range threadIDs {
		g.Go(func() error {
			if !sel.Current(token) {
				return nil
			}

			t, err := s.GetThread(ctx, id)
			if err != nil {
				if errors.Is(err, authsdk.ErrSessionExpired) || errors.Is(err, authsdk.ErrSessionReset) {
					return err
				}
				s.logger.Debug("prefetch skipped thread", "thread_id", id, "error", err)
				return nil
			}

			applyMu.Lock()
			defer applyMu.Unlock()
			if sel.Current(token) {
				apply(t)
			}
			return nil
		})
	}

	return g.Wait()
}

// ============================================================================
// Labels & Lifecycle
// ============================================================================

// Star adds the thread to Starred.
func (s *Service) Star(ctx context.Context, threadID string) error {
	return s.modify(ctx, threadID, []string{LabelStarred}, nil)
}

// Unstar removes the thread from Starred.
func (s *Service) Unstar(ctx context.Context, threadID string) error {
	return s.modify(ctx, threadID, nil, []string{LabelStarred})
}

// MarkRead clears the thread's UNREAD label.
func (s *Service) MarkRead(ctx context.Context, threadID string) error {
	return s.modify(ctx, threadID, nil, []string{LabelUnread})
}

// MarkUnread sets the thread's UNREAD label.
func (s *Service) MarkUnread(ctx context.Context, threadID string) error {
	return s.modify(ctx, threadID, []string{LabelUnread}, nil)
}

// Trash moves the thread to Trash.
func (s *Service) Trash(ctx context.Context, threadID string) error {
	err := s.api.Do(ctx, authsdk.Request{
		Method: http.MethodPost,
		Path:   threadPath(threadID) + "/trash",
	}, nil)
	if err != nil {
		return fmt.Errorf("trash thread %s: %w", threadID, err)
	}
	return nil
}

// Delete permanently deletes the thread.
func (s *Service) Delete(ctx context.Context, threadID string) error {
	err := s.api.Do(ctx, authsdk.Request{
		Method: http.MethodDelete,
		Path:   threadPath(threadID),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

func (s *Service) modify(ctx context.Context, threadID string, add, remove []string) error {
	err := s.api.Do(ctx, authsdk.Request{
		Method: http.MethodPost,
		Path:   threadPath(threadID) + "/modify",
		Body:   modifyRequest{AddLabelIDs: add, RemoveLabelIDs: remove},
	}, nil)
	if err != nil {
		return fmt.Errorf("modify thread %s: %w", threadID, err)
	}
	return nil
}

// ============================================================================
// Sending
// ============================================================================

// Send delivers a draft.
func (s *Service) Send(ctx context.Context, d Draft) (*Sent, error) {
	raw, err := d.Build(s.now())
	if err != nil {
		return nil, err
	}

	var sent Sent
	err = s.api.Do(ctx, authsdk.Request{
		Method: http.MethodPost,
		Path:   "/messages/send",
		Body: sendRequest{
			Raw:      base64.URLEncoding.EncodeToString(raw),
			ThreadID: d.ThreadID,
		},
	}, &sent)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &sent, nil
}

// Reply answers the sender of orig.
func (s *Service) Reply(ctx context.Context, orig Email, from, body string) (*Sent, error) {
	return s.Send(ctx, ReplyDraft(orig, from, body, false))
}

// ReplyAll answers the sender and every other recipient of orig.
func (s *Service) ReplyAll(ctx context.Context, orig Email, from, body string) (*Sent, error) {
	return s.Send(ctx, ReplyDraft(orig, from, body, true))
}

// Forward sends orig on to new recipients.
func (s *Service) Forward(ctx context.Context, orig Email, from string, to []string, body string) (*Sent, error) {
	return s.Send(ctx, ForwardDraft(orig, from, to, body))
}

func threadPath(id string) string {
	return "/threads/" + url.PathEscape(id)
}
