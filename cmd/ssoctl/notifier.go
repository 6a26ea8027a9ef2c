package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
)

// printNotifier renders the expiry UI as lines on a terminal.
type printNotifier struct {
	mu  sync.Mutex
	out io.Writer

	loggedOut chan ssosdk.LogoutReason
	warned    chan struct{}
}

func newPrintNotifier(out io.Writer) *printNotifier {
	return &printNotifier{
		out:       out,
		loggedOut: make(chan ssosdk.LogoutReason, 1),
		warned:    make(chan struct{}, 1),
	}
}

func (n *printNotifier) ExpiryWarning(w ssosdk.Warning) {
	n.printf("session expires in %ds (at %s). Stay signed in? [y/n] ",
		w.ExpiresInSeconds, w.Deadline.Format(time.Kitchen))
	select {
	case n.warned <- struct{}{}:
	default:
	}
}

func (n *printNotifier) WarningCleared() {
	n.printf("\nsession extended\n")
}

func (n *printNotifier) LoggedOut(reason ssosdk.LogoutReason) {
	n.printf("\nsigned out (%s)\n", reason)
	select {
	case n.loggedOut <- reason:
	default:
	}
}

func (n *printNotifier) printf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, format, args...)
}
