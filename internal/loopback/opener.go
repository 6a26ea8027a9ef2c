package loopback

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/browser"
)

// SystemBrowser opens pages with the platform's URL handler.
func SystemBrowser() Opener {
	return systemBrowser(browser.OpenURL)
}

func systemBrowser(openURL func(string) error) Opener {
	return func(ctx context.Context, url string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := openURL(url); err != nil {
			return fmt.Errorf("failed to open browser: %w", err)
		}
		return nil
	}
}

// Headless "opens" pages by following them with c. Sharing c with
// Config.Browser lets hidden contexts reuse the provider session, which is
// what a real browser does. Only useful against providers that sign in
// without interaction, like the dev provider.
func Headless(c *http.Client) Opener {
	return func(ctx context.Context, url string) error {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		go func() {
			resp, err := c.Do(req)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}
