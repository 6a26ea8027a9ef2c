package ssosdk

import "strings"

// Flow is the transport for the interactive authorization round trip.
type Flow int

const (
	FlowPopup Flow = iota
	FlowRedirect
)

func (f Flow) String() string {
	switch f {
	case FlowPopup:
		return "popup"
	case FlowRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// SmallViewportWidth is the width below which touch devices get a redirect.
const SmallViewportWidth = 768

// Capabilities describes the runtime environment of a login attempt.
type Capabilities struct {
	// Standalone is true when running as an installed app, where popups
	// open outside the app and never return.
	Standalone bool
	// CoarsePointer reports a touch-first primary pointer.
	CoarsePointer bool
	// TouchPoints is the number of simultaneous touch points supported.
	TouchPoints int
	// ViewportWidth in CSS pixels. Zero means unknown.
	ViewportWidth int
	UserAgent     string
}

// brokenPopupAgents are user-agent fragments of embedded browsers that
// open popups as new tabs with no opener, or not at all.
var brokenPopupAgents = []string{
	"FBAN",
	"FBAV",
	"Instagram",
	"Line/",
	"MicroMessenger",
	"; wv)",
}

// SelectFlow decides between popup and redirect. It is a pure function of
// caps and is evaluated afresh for every attempt.
func SelectFlow(caps Capabilities) Flow {
	if caps.Standalone {
		return FlowRedirect
	}

	touch := caps.CoarsePointer || caps.TouchPoints > 0
	if touch && caps.ViewportWidth > 0 && caps.ViewportWidth < SmallViewportWidth {
		return FlowRedirect
	}

	for _, frag := range brokenPopupAgents {
		if strings.Contains(caps.UserAgent, frag) {
			return FlowRedirect
		}
	}

	return FlowPopup
}
