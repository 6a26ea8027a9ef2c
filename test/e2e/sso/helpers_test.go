//go:build e2e

package sso_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsso/internal/loopback"
	"github.com/aussiebroadwan/tabsso/pkg/slogx"
	"github.com/aussiebroadwan/tabsso/pkg/ssosdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and a manager fixture for the SSO end-to-end tests. The
 * dev provider runs in a container; the manager and its loopback host run in
 * the test process, with a headless cookie-jar client as the browser.
 */

const (
	testImageName = "tabsso-devidp-test:latest"

	clientID  = "tabsso"
	userEmail = "e2e@localhost"
	userIDP   = "e2e-idp"
)

var desktop = ssosdk.Capabilities{ViewportWidth: 1440}

// TestMain builds the Docker image once before all tests and removes it
// after they complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building dev provider Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up dev provider Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/ssodev/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // The image might not exist.
}

// setupProvider starts the dev provider and returns its base URL.
func setupProvider(t *testing.T, env map[string]string) string {
	t.Helper()
	ctx := context.Background()

	base := map[string]string{
		"DEVIDP_CLIENT_ID":  clientID,
		"DEVIDP_USER_EMAIL": userEmail,
		"DEVIDP_USER_IDP":   userIDP,
		"ENV":               "test",
		"LOG_LEVEL":         "info",
		"LOG_FORMAT":        "json",
	}
	for k, v := range env {
		base[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8090/tcp"},
			Env:          base,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8090/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8090")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// recordingNotifier collects expiry UI events.
type recordingNotifier struct {
	warnings chan ssosdk.Warning
	logouts  chan ssosdk.LogoutReason
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		warnings: make(chan ssosdk.Warning, 8),
		logouts:  make(chan ssosdk.LogoutReason, 8),
	}
}

func (n *recordingNotifier) ExpiryWarning(w ssosdk.Warning) { n.warnings <- w }
func (n *recordingNotifier) WarningCleared()                {}
func (n *recordingNotifier) LoggedOut(r ssosdk.LogoutReason) {
	n.logouts <- r
}

type fixture struct {
	baseURL  string
	browser  *http.Client
	host     *loopback.Host
	m        *ssosdk.Manager
	notifier *recordingNotifier
}

// newFixture wires a Manager against the provider at baseURL. The headless
// browser is shared by popups and hidden contexts, like a real browser
// shares its cookies.
func newFixture(t *testing.T, baseURL string, cfg ssosdk.Config) *fixture {
	t.Helper()
	return newFixtureWithOpener(t, baseURL, cfg, nil)
}

// newFixtureWithOpener is newFixture with interactive pages shown by open
// instead of the headless browser.
func newFixtureWithOpener(t *testing.T, baseURL string, cfg ssosdk.Config, open loopback.Opener) *fixture {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	browser := &http.Client{Jar: jar, Timeout: 10 * time.Second}
	if open == nil {
		open = loopback.Headless(browser)
	}

	host, err := loopback.Listen(loopback.Config{
		Open:    open,
		Browser: browser,
		Logger:  slogx.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, host.Close()) })

	cfg.RedirectURI = host.CallbackURL()
	cfg.SilentRedirectURI = host.SilentCallbackURL()
	if cfg.SilentTimeout == 0 {
		cfg.SilentTimeout = 5 * time.Second
	}
	if cfg.PopupTimeout == 0 {
		cfg.PopupTimeout = 15 * time.Second
	}

	notifier := newRecordingNotifier()
	m, err := ssosdk.NewManager(cfg, ssosdk.Deps{
		Backend:  ssosdk.NewClient(baseURL),
		Host:     host,
		Notifier: notifier,
		Logger:   slogx.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	host.Attach(m.Callback())

	return &fixture{baseURL: baseURL, browser: browser, host: host, m: m, notifier: notifier}
}

// providerLogout ends the provider session held in the browser's cookies.
func (f *fixture) providerLogout(t *testing.T) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.baseURL+"/logout", nil)
	require.NoError(t, err)
	resp, err := f.browser.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, resp.StatusCode, 400)
}
