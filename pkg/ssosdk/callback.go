package ssosdk

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
)

// Hosting is where a callback page is running.
type Hosting int

const (
	// HostedTop is the application's own top-level page, after a redirect.
	HostedTop Hosting = iota
	// HostedPopup is a popup opened by the application.
	HostedPopup
	// HostedFrame is a hidden frame opened by a silent refresh.
	HostedFrame
)

func (h Hosting) String() string {
	switch h {
	case HostedTop:
		return "top"
	case HostedPopup:
		return "popup"
	case HostedFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// CallbackParams are the provider's redirect parameters.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// ParseCallback reads CallbackParams from a redirect query.
func ParseCallback(q url.Values) CallbackParams {
	return CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		ErrorURI:         q.Get("error_uri"),
	}
}

func (p CallbackParams) message(t MessageType, origin string) CallbackMessage {
	return CallbackMessage{
		Type:             t,
		Origin:           origin,
		Code:             p.Code,
		State:            p.State,
		Error:            p.Error,
		ErrorDescription: p.ErrorDescription,
		ErrorURI:         p.ErrorURI,
	}
}

// CallbackRequest is one arrival at the redirect target.
type CallbackRequest struct {
	Hosting Hosting
	// Origin is the origin the callback page was served from.
	Origin string
	Params CallbackParams
}

// CallbackResult tells the host what to do with the callback page.
type CallbackResult struct {
	// Relayed is true when a waiting listener took the message.
	Relayed bool
	// CloseWindow asks the host to close the page (popups only).
	CloseWindow bool
	// Session and Err are set by redirect completion.
	Session *Session
	Err     error
}

// CallbackBridge is the code behind the redirect target. Relayed callbacks
// never exchange the code themselves.
type CallbackBridge struct {
	bus      *Bus
	complete func(ctx context.Context, p CallbackParams) (*Session, error)
	log      *slog.Logger
}

// Handle relays or completes a callback according to where it is hosted.
func (b *CallbackBridge) Handle(ctx context.Context, req CallbackRequest) CallbackResult {
	log := b.log.With("hosting", req.Hosting.String(), "state_fp", cryptox.ShortFingerprint(req.Params.State))

	switch req.Hosting {
	case HostedPopup:
		n := b.bus.Publish(req.Params.message(MessageCallback, req.Origin))
		log.Debug("callback relayed", "listeners", n)
		return CallbackResult{Relayed: n > 0, CloseWindow: true}

	case HostedFrame:
		// The frame's owner discards it.
		n := b.bus.Publish(req.Params.message(MessageSilentCallback, req.Origin))
		log.Debug("silent callback relayed", "listeners", n)
		return CallbackResult{Relayed: n > 0}

	default:
		sess, err := b.complete(ctx, req.Params)
		if err != nil {
			log.Warn("redirect completion failed", "err", err)
		}
		return CallbackResult{Session: sess, Err: err}
	}
}
