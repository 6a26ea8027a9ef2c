package ssosdk

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// ProviderConfig is the discovery response describing the identity provider.
type ProviderConfig struct {
	AuthURL  string `json:"authUrl"`
	ClientID string `json:"clientId"`
	Scope    string `json:"scope"`
	Realm    string `json:"realm,omitempty"`
}

func (pc ProviderConfig) validate() error {
	if pc.AuthURL == "" || pc.ClientID == "" {
		return fmt.Errorf("%w: discovery response lacks authUrl or clientId", ErrConfigUnavailable)
	}
	return nil
}

// authOptions are the optional parameters of an authorization request.
type authOptions struct {
	// Prompt is "none" for silent refresh.
	Prompt string
	// IDPHint skips the provider's account chooser on escalated re-auth.
	IDPHint string
}

// authURL builds the authorization URL for attempt at. The callback side
// re-derives the challenge from the stored verifier, so only the verifier
// is kept.
func authURL(pc ProviderConfig, at Attempt, hintParam string, opts authOptions) (string, error) {
	if err := pc.validate(); err != nil {
		return "", err
	}

	oc := oauth2.Config{
		ClientID:    pc.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: pc.AuthURL},
		RedirectURL: at.RedirectURI,
		Scopes:      strings.Fields(pc.Scope),
	}

	params := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(at.PKCE.Verifier)}
	if opts.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", opts.Prompt))
	}
	if opts.IDPHint != "" && hintParam != "" {
		params = append(params, oauth2.SetAuthURLParam(hintParam, opts.IDPHint))
	}

	return oc.AuthCodeURL(at.State, params...), nil
}
