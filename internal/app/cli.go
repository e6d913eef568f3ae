package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/tabmail/internal/mail"
	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
)

// ErrNotSignedIn is returned by commands that need a session when there is
// none.
var ErrNotSignedIn = errors.New("not signed in")

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, app *Application, args []string) error
}

var commandList = []command{
	{"login", "[--email] [--google-id-token]", "Sign in", runLogin},
	{"register", "[--email] [--name]", "Create an account and sign in", runRegister},
	{"logout", "", "Sign out and revoke the session", runLogout},
	{"whoami", "", "Show the signed-in user", runWhoami},
	{"mailboxes", "", "List mailboxes", runMailboxes},
	{"threads", "<mailbox> [--page] [--q] [--preview]", "List conversations in a mailbox", runThreads},
	{"show", "<thread>", "Show a conversation and mark it read", runShow},
	{"star", "<thread>", "Star a conversation", threadAction((*mail.Service).Star, "Starred")},
	{"unstar", "<thread>", "Remove the star", threadAction((*mail.Service).Unstar, "Unstarred")},
	{"read", "<thread>", "Mark a conversation read", threadAction((*mail.Service).MarkRead, "Marked read")},
	{"unread", "<thread>", "Mark a conversation unread", threadAction((*mail.Service).MarkUnread, "Marked unread")},
	{"trash", "<thread>", "Move a conversation to Trash", threadAction((*mail.Service).Trash, "Moved to Trash")},
	{"delete", "<thread> [--yes]", "Delete a conversation permanently", runDelete},
	{"send", "--to --subject --body [--cc] [--bcc]", "Send a message", runSend},
	{"reply", "<thread> --body [--all]", "Reply to the latest message of a conversation", runReply},
	{"forward", "<thread> --to [--body]", "Forward the latest message of a conversation", runForward},
	{"history", "[--remove] [--clear]", "Show recent searches", runHistory},
}

var commands = func() map[string]command {
	m := make(map[string]command, len(commandList))
	for _, c := range commandList {
		m[c.name] = c
	}
	return m
}()

func (app *Application) usage() {
	v := app.view
	v.println(v.title.Render("tabmail") + " " + v.muted.Render(BuildVersion))
	v.println("")
	v.println("Usage: tabmail [--config path] <command> [flags]")
	v.println("")
	for _, c := range commandList {
		v.println(fmt.Sprintf("  %-10s %-40s %s", c.name, c.args, v.muted.Render(c.summary)))
	}
}

func newFlagSet(app *Application, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(app.view.out)
	return fs
}

// parse parses args and returns the positional arguments. want is the
// number of positional arguments required.
func parse(fs *pflag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != want {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), want, fs.NArg())
	}
	return fs.Args(), nil
}

// requireUser returns the signed-in user, or sends the user to the login
// entry point.
func (app *Application) requireUser() (*authsdk.User, error) {
	st := app.session.State()
	if !st.Authenticated || st.User == nil {
		app.nav.Navigate(authsdk.LoginPath)
		return nil, ErrNotSignedIn
	}
	return st.User, nil
}

// ============================================================================
// Session Commands
// ============================================================================

func runLogin(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "login")
	email := fs.String("email", "", "account email")
	googleToken := fs.String("google-id-token", "", "sign in with a Google ID token")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	var err error
	if *googleToken != "" {
		err = app.session.LoginWithGoogle(ctx, *googleToken, *email)
	} else {
		var password string
		*email, password, err = app.prompt.Credentials(*email)
		if err != nil {
			return err
		}
		err = app.session.Login(ctx, *email, password)
	}
	if err != nil {
		return err
	}

	app.nav.Navigate(homePath)
	app.view.info("Signed in as %s", app.view.bold.Render(app.session.State().User.Email))
	return nil
}

func runRegister(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "register")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	req, err := app.prompt.Registration(*email, *name)
	if err != nil {
		return err
	}
	if err := app.session.Register(ctx, req); err != nil {
		return err
	}

	app.nav.Navigate(homePath)
	app.view.info("Welcome, %s", app.view.bold.Render(app.session.State().User.Email))
	return nil
}

func runLogout(ctx context.Context, app *Application, args []string) error {
	if _, err := parse(newFlagSet(app, "logout"), args, 0); err != nil {
		return err
	}

	app.session.Logout(ctx)
	app.view.println("Signed out.")
	return nil
}

func runWhoami(_ context.Context, app *Application, args []string) error {
	if _, err := parse(newFlagSet(app, "whoami"), args, 0); err != nil {
		return err
	}

	user, err := app.requireUser()
	if err != nil {
		return err
	}
	app.view.user(user)
	return nil
}

// ============================================================================
// Mail Commands
// ============================================================================

func runMailboxes(ctx context.Context, app *Application, args []string) error {
	if _, err := parse(newFlagSet(app, "mailboxes"), args, 0); err != nil {
		return err
	}
	if _, err := app.requireUser(); err != nil {
		return err
	}

	boxes, err := app.mail.ListMailboxes(ctx)
	if err != nil {
		return err
	}
	app.view.mailboxes(boxes)
	return nil
}

func runThreads(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "threads")
	page := fs.String("page", "", "page token from a previous listing")
	query := fs.StringP("q", "q", "", "search query")
	preview := fs.Bool("preview", false, "load every conversation to show message counts")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if _, err := app.requireUser(); err != nil {
		return err
	}

	mailbox := strings.ToUpper(pos[0])
	if *query != "" {
		if err := app.history.Add(ctx, *query); err != nil {
			app.logger.Warn("recording search failed", "error", err)
		}
	}

	result, err := app.mail.ListThreads(ctx, mailbox, mail.ListOptions{
		PageToken: *page,
		Query:     *query,
	})
	if err != nil {
		return err
	}

	counts := map[string]int{}
	if *preview {
		counts, err = app.prefetch(ctx, mailbox, result)
		if err != nil {
			return err
		}
	}

	app.view.threads(result, counts, app.now())
	return nil
}

// prefetch loads each listed thread and returns its message count.
func (app *Application) prefetch(ctx context.Context, mailbox string, page *mail.Page) (map[string]int, error) {
	ids := make([]string, 0, len(page.Emails))
	for _, e := range page.Emails {
		ids = append(ids, e.ThreadID)
	}

	var sel mail.Selection
	token := sel.Select(mailbox)
	counts := make(map[string]int, len(ids))

	err := app.mail.PrefetchThreads(ctx, &sel, token, ids, func(t *mail.Thread) {
		counts[t.ID] = len(t.Messages)
	})
	return counts, err
}

func runShow(ctx context.Context, app *Application, args []string) error {
	pos, err := parse(newFlagSet(app, "show"), args, 1)
	if err != nil {
		return err
	}
	if _, err := app.requireUser(); err != nil {
		return err
	}

	t, err := app.mail.GetThread(ctx, pos[0])
	if err != nil {
		return err
	}
	app.view.thread(t)

	for _, m := range t.Messages {
		if m.Unread() {
			return app.mail.MarkRead(ctx, t.ID)
		}
	}
	return nil
}

// threadAction builds a command that applies op to one thread.
func threadAction(op func(*mail.Service, context.Context, string) error, done string) func(context.Context, *Application, []string) error {
	return func(ctx context.Context, app *Application, args []string) error {
		pos, err := parse(newFlagSet(app, "thread"), args, 1)
		if err != nil {
			return err
		}
		if _, err := app.requireUser(); err != nil {
			return err
		}

		if err := op(app.mail, ctx, pos[0]); err != nil {
			return err
		}
		app.view.info("%s %s", done, app.view.muted.Render(pos[0]))
		return nil
	}
}

func runDelete(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "delete")
	yes := fs.BoolP("yes", "y", false, "do not ask for confirmation")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if _, err := app.requireUser(); err != nil {
		return err
	}

	if !*yes {
		ok, err := app.prompt.Confirm("Delete this conversation forever?")
		if err != nil {
			return err
		}
		if !ok {
			app.view.println("Cancelled.")
			return nil
		}
	}

	if err := app.mail.Delete(ctx, pos[0]); err != nil {
		return err
	}
	app.view.info("Deleted %s", app.view.muted.Render(pos[0]))
	return nil
}

func runSend(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "send")
	to := fs.StringSlice("to", nil, "recipients")
	cc := fs.StringSlice("cc", nil, "carbon copy recipients")
	bcc := fs.StringSlice("bcc", nil, "blind carbon copy recipients")
	subject := fs.String("subject", "", "subject line")
	body := fs.String("body", "", "message text")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	user, err := app.requireUser()
	if err != nil {
		return err
	}

	sent, err := app.mail.Send(ctx, mail.Draft{
		From:    user.Email,
		To:      *to,
		Cc:      *cc,
		Bcc:     *bcc,
		Subject: *subject,
		Body:    *body,
	})
	if err != nil {
		return err
	}
	app.view.info("Sent %s", app.view.muted.Render(sent.ID))
	return nil
}

func runReply(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "reply")
	body := fs.String("body", "", "reply text")
	all := fs.Bool("all", false, "reply to every recipient")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	user, err := app.requireUser()
	if err != nil {
		return err
	}

	t, err := app.mail.GetThread(ctx, pos[0])
	if err != nil {
		return err
	}

	reply := app.mail.Reply
	if *all {
		reply = app.mail.ReplyAll
	}
	sent, err := reply(ctx, t.Latest(), user.Email, *body)
	if err != nil {
		return err
	}
	app.view.info("Replied %s", app.view.muted.Render(sent.ID))
	return nil
}

func runForward(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "forward")
	to := fs.StringSlice("to", nil, "recipients")
	body := fs.String("body", "", "note above the forwarded message")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	user, err := app.requireUser()
	if err != nil {
		return err
	}

	t, err := app.mail.GetThread(ctx, pos[0])
	if err != nil {
		return err
	}
	sent, err := app.mail.Forward(ctx, t.Latest(), user.Email, *to, *body)
	if err != nil {
		return err
	}
	app.view.info("Forwarded %s", app.view.muted.Render(sent.ID))
	return nil
}

// ============================================================================
// Search History
// ============================================================================

func runHistory(ctx context.Context, app *Application, args []string) error {
	fs := newFlagSet(app, "history")
	remove := fs.String("remove", "", "forget one search")
	clearAll := fs.Bool("clear", false, "forget every search")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	switch {
	case *clearAll:
		return app.history.Clear(ctx)
	case *remove != "":
		return app.history.Remove(ctx, *remove)
	}

	entries, err := app.history.Recent(ctx, 0)
	if err != nil {
		return err
	}
	app.view.history(entries, app.now())
	return nil
}
