package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
)

// command runs one subcommand against an assembled runtime.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, rt *runtime, args []string, cio cliIO) error
}

type cliIO struct {
	in       io.Reader
	out      io.Writer
	notifier *printNotifier
}

var commands = []command{
	{"login", "login [-redirect] [-touch] [-standalone]", runLogin},
	{"status", "status", runStatus},
	{"refresh", "refresh", runRefresh},
	{"ensure", "ensure", runEnsure},
	{"watch", "watch", runWatch},
	{"logout", "logout", runLogout},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func runLogin(ctx context.Context, rt *runtime, args []string, cio cliIO) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(cio.out)
	redirect := fs.Bool("redirect", false, "use a full-page redirect instead of a popup")
	touch := fs.Bool("touch", false, "report a small touch screen")
	standalone := fs.Bool("standalone", false, "report an installed-app context")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caps := ssosdk.Capabilities{ViewportWidth: 1280}
	if *touch {
		caps.CoarsePointer = true
		caps.TouchPoints = 5
		caps.ViewportWidth = 390
	}
	// The installed-app signal is what forces a redirect.
	caps.Standalone = *standalone || *redirect

	res, err := rt.manager.Login(ctx, caps)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	sess := res.Session
	if res.Redirected {
		fmt.Fprintln(cio.out, "continue in the browser...")
		if sess, err = rt.waitRedirect(ctx, rt.cfg.PopupTimeout); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	fmt.Fprintf(cio.out, "signed in via %s\n", res.Flow)
	printSession(cio.out, sess)
	return nil
}

func runStatus(ctx context.Context, rt *runtime, _ []string, cio cliIO) error {
	sess, err := rt.manager.Session(ctx)
	if errors.Is(err, ssosdk.ErrNoSession) {
		fmt.Fprintln(cio.out, "not signed in")
		if msg, _ := rt.manager.LastError(ctx); msg != "" {
			fmt.Fprintf(cio.out, "last error: %s\n", msg)
		}
		return nil
	}
	if err != nil {
		return err
	}
	printSession(cio.out, sess)

	// Read only: a direct check does not trigger renewal or logout.
	v, err := ssosdk.NewClient(rt.cfg.BackendURL).CheckValidity(ctx, sess.AccessToken)
	if err != nil {
		fmt.Fprintf(cio.out, "validity: unknown (%v)\n", err)
		return nil
	}
	fmt.Fprintf(cio.out, "valid: %t\n", v.Valid)
	if v.ExpiresIn != nil {
		fmt.Fprintf(cio.out, "backend expires in: %ds\n", *v.ExpiresIn)
	}
	return nil
}

func runRefresh(ctx context.Context, rt *runtime, _ []string, cio cliIO) error {
	res := rt.manager.SilentRefresh(ctx)
	fmt.Fprintf(cio.out, "refresh: %s\n", res.Outcome)
	if res.Err != nil {
		if ssosdk.IsSilentAuthError(res.Err) {
			fmt.Fprintln(cio.out, "the provider needs interaction; run login")
		}
		return res.Err
	}
	printSession(cio.out, res.Session)
	return nil
}

func runEnsure(ctx context.Context, rt *runtime, _ []string, cio cliIO) error {
	if err := rt.manager.Start(ctx); err != nil {
		return err
	}
	if _, err := rt.manager.Session(ctx); errors.Is(err, ssosdk.ErrNoSession) {
		fmt.Fprintln(cio.out, "not signed in; protected content will prompt")
		return nil
	}

	if !rt.manager.EnsureReady(ctx) {
		fmt.Fprintln(cio.out, "not ready; protected content will prompt")
		return errNotReady
	}
	fmt.Fprintln(cio.out, "ready")
	return nil
}

var errNotReady = errors.New("provider session could not be made ready")

func runWatch(ctx context.Context, rt *runtime, _ []string, cio cliIO) error {
	if err := rt.manager.Start(ctx); err != nil {
		return err
	}
	if _, err := rt.manager.Session(ctx); errors.Is(err, ssosdk.ErrNoSession) {
		fmt.Fprintln(cio.out, "not signed in")
		return nil
	}
	fmt.Fprintln(cio.out, "watching session; answer y/n to warnings, 'check' to check now")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cio.in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-cio.notifier.loggedOut:
			if reason == ssosdk.ReasonSignedOut {
				return nil
			}
			return fmt.Errorf("session ended: %s", reason)
		case line, ok := <-lines:
			if !ok {
				// Input closed: keep watching until the session or ctx ends.
				lines = nil
				continue
			}
			if err := answer(ctx, rt.manager, line, cio.out); err != nil {
				return err
			}
		}
	}
}

func answer(ctx context.Context, m *ssosdk.Manager, line string, out io.Writer) error {
	switch strings.ToLower(line) {
	case "y", "yes":
		if err := m.Decide(ctx, ssosdk.StaySignedIn); err != nil {
			fmt.Fprintf(out, "could not extend the session: %v\n", err)
		}
	case "n", "no":
		return m.Decide(ctx, ssosdk.SignOut)
	case "check":
		snap := m.CheckNow(ctx)
		fmt.Fprintf(out, "valid: %t", snap.Valid)
		if snap.ExpiresInSeconds != nil {
			fmt.Fprintf(out, ", expires in %ds", *snap.ExpiresInSeconds)
		}
		if snap.Err != nil {
			fmt.Fprintf(out, " (check failed: %v)", snap.Err)
		}
		fmt.Fprintln(out)
	case "":
	default:
		fmt.Fprintf(out, "unknown answer %q\n", line)
	}
	return nil
}

func runLogout(ctx context.Context, rt *runtime, _ []string, cio cliIO) error {
	if err := rt.manager.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cio.out, "signed out")
	return nil
}

func printSession(out io.Writer, sess *ssosdk.Session) {
	if sess == nil {
		return
	}
	var user struct {
		Subject string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
	}
	_ = json.Unmarshal(sess.User, &user)

	fmt.Fprintf(out, "user: %s <%s> (%s)\n", user.Name, user.Email, user.Subject)
	if sess.IdentityProvider != "" {
		fmt.Fprintf(out, "identity provider: %s\n", sess.IdentityProvider)
	}
	if sess.ExpiresInSeconds != nil {
		fmt.Fprintf(out, "expires in: %ds\n", *sess.ExpiresInSeconds)
	}
}
