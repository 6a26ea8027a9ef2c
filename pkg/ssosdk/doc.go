// Package ssosdk manages a client-side SSO session obtained with the OAuth2
// authorization code flow and PKCE.
//
// A Manager ties together:
//
//   - login, by popup or full-page redirect as SelectFlow decides;
//   - the CallbackBridge, run by the Host on the provider's redirect
//     target, which relays results over a Bus or completes a redirect;
//   - the token exchange through the application Backend;
//   - a validity monitor (timer plus debounced visibility events);
//   - silent refresh in a hidden context, guarded against overlap and
//     rate limited by a cooldown;
//   - the expiry coordinator, which renews transparently, warns once per
//     expiry window through a Notifier, and forces logout;
//   - Readiness, which other features call before opening protected
//     content.
//
// Every authorization attempt has its own state and PKCE verifier, stored
// under attempt-scoped keys and deleted when consumed. A callback whose state
// does not match the pending attempt of its kind never reaches the backend.
package ssosdk
