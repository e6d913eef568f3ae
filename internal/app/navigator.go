package app

import (
	"log/slog"
	"sync"
)

// homePath is where a CLI invocation starts.
const homePath = "/"

// cliNavigator records the entry point the session wants the user on. A
// terminal has no routes, so navigation is remembered and reported when
// the command finishes.
type cliNavigator struct {
	logger *slog.Logger

	mu       sync.Mutex
	location string
}

func newNavigator(logger *slog.Logger) *cliNavigator {
	return &cliNavigator{logger: logger, location: homePath}
}

func (n *cliNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *cliNavigator) Navigate(path string) {
	n.mu.Lock()
	from := n.location
	n.location = path
	n.mu.Unlock()

	n.logger.Debug("navigate", "from", from, "to", path)
}

func (n *cliNavigator) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = homePath
}
