package lws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

// Server BDD Test Context
type serverBDDTestContext struct {
	opts         *ServerOptions
	observer     *recordingObserver
	handle       *ServerHandle
	lastError    error
	lastBody     string
	lastStatus   int
	listeningURL string
	trace        []string
	client       *http.Client
}

func (ctx *serverBDDTestContext) resetContext() {
	if ctx.handle != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = ctx.handle.Close(shutdownCtx)
		cancel()
	}
	ctx.opts = nil
	ctx.observer = newRecordingObserver("bdd")
	ctx.handle = nil
	ctx.lastError = nil
	ctx.lastBody = ""
	ctx.lastStatus = 0
	ctx.listeningURL = ""
	ctx.trace = nil
	if ctx.client != nil {
		ctx.client.CloseIdleConnections()
	}
	ctx.client = &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test server
		},
	}
}

func (ctx *serverBDDTestContext) iHaveAServerConfigurationOnAnAvailablePort() error {
	ctx.resetContext()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to reserve a port: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return fmt.Errorf("failed to release the reserved port: %w", err)
	}

	ctx.opts = &ServerOptions{Port: port, Hostname: "127.0.0.1"}
	return nil
}

func (ctx *serverBDDTestContext) httpsIsEnabledWithoutCertificateMaterial() error {
	ctx.opts.HTTPS = true
	return nil
}

func (ctx *serverBDDTestContext) aMiddlewareStackTagging(first, second string) error {
	ctx.opts.Stack = []MiddlewareSpec{
		&taggingMiddleware{tag: first, trace: &ctx.trace},
		&taggingMiddleware{tag: second, trace: &ctx.trace},
	}
	return nil
}

func (ctx *serverBDDTestContext) onlyAPrivateKeyIsConfigured() error {
	ctx.opts.Key = "server.key"
	return nil
}

func (ctx *serverBDDTestContext) theServerIsStarted() error {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if len(ctx.trace) > 0 {
			_, _ = w.Write([]byte(strings.Join(ctx.trace, ",")))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	handle, err := Listen(ctx.opts,
		WithObserver(ctx.observer),
		WithHandler(handler),
	)
	if err != nil {
		ctx.lastError = err
		return nil
	}
	ctx.handle = handle

	for _, event := range ctx.observer.Events() {
		if event.Type() == EventServerListening {
			var urls []string
			if err := event.DataAs(&urls); err != nil {
				return fmt.Errorf("failed to decode listening event: %w", err)
			}
			if len(urls) == 0 {
				return errors.New("listening event carried no endpoint URLs")
			}
			ctx.listeningURL = urls[0]
		}
	}
	return nil
}

func (ctx *serverBDDTestContext) theListeningEventShouldCarryScheme(scheme string) error {
	if ctx.listeningURL == "" {
		return errors.New("listening event was not observed")
	}
	if !strings.HasPrefix(ctx.listeningURL, scheme+"://") {
		return fmt.Errorf("expected a %s endpoint URL, got %s", scheme, ctx.listeningURL)
	}
	return nil
}

func (ctx *serverBDDTestContext) aRequestIsServed() error {
	if ctx.listeningURL == "" {
		return errors.New("server is not listening")
	}
	resp, err := ctx.client.Get(ctx.listeningURL)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("failed to close response body: %w", err)
	}
	ctx.lastBody = string(body)
	ctx.lastStatus = resp.StatusCode
	return nil
}

func (ctx *serverBDDTestContext) theServerShouldAcceptRequests() error {
	if err := ctx.aRequestIsServed(); err != nil {
		return err
	}
	if ctx.lastStatus != http.StatusOK {
		return fmt.Errorf("expected status 200, got %d", ctx.lastStatus)
	}
	return nil
}

func (ctx *serverBDDTestContext) waitForEvent(key string) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range ctx.observer.Keys() {
			if got == key {
				return nil
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("event %s was never observed; saw %v", key, ctx.observer.Keys())
}

func (ctx *serverBDDTestContext) socketConnectAndDataEventsShouldBeObserved() error {
	if err := ctx.waitForEvent(EventSocketConnect); err != nil {
		return err
	}
	return ctx.waitForEvent(EventSocketData)
}

func (ctx *serverBDDTestContext) theSocketPayloadShouldCarryHumanizedByteCounters() error {
	humanized := regexp.MustCompile(`^[\d.]+ [kMGT]?B$`)
	for _, event := range ctx.observer.Events() {
		if event.Type() != EventSocketData {
			continue
		}
		var payload map[string]any
		if err := event.DataAs(&payload); err != nil {
			return fmt.Errorf("failed to decode socket payload: %w", err)
		}
		for _, field := range []string{"bytesRead", "bytesWritten"} {
			value, ok := payload[field].(string)
			if !ok || !humanized.MatchString(value) {
				return fmt.Errorf("field %s is not a humanized byte count: %v", field, payload[field])
			}
		}
		return nil
	}
	return errors.New("no socket data event was observed")
}

func (ctx *serverBDDTestContext) theRequestShouldPassThrough(expected string) error {
	if ctx.lastBody != expected {
		return fmt.Errorf("expected middleware trace %q, got %q", expected, ctx.lastBody)
	}
	return nil
}

func (ctx *serverBDDTestContext) theServerIsClosed() error {
	if ctx.handle == nil {
		return errors.New("server was never started")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctx.handle.Close(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	ctx.handle = nil
	return nil
}

func (ctx *serverBDDTestContext) theCloseEventShouldBeEmitted() error {
	return ctx.waitForEvent(EventServerClose)
}

func (ctx *serverBDDTestContext) startupShouldFailWithAConfigurationConflict() error {
	if ctx.lastError == nil {
		return errors.New("startup unexpectedly succeeded")
	}
	if !errors.Is(ctx.lastError, ErrConfigConflict) {
		return fmt.Errorf("expected a configuration conflict, got: %w", ctx.lastError)
	}
	return nil
}

func (ctx *serverBDDTestContext) noListeningEventShouldEverBeEmitted() error {
	for _, key := range ctx.observer.Keys() {
		if key == EventServerListening {
			return errors.New("listening event was emitted despite the startup failure")
		}
	}
	return nil
}

// TestServerLifecycleBDD runs the BDD tests for the server lifecycle
func TestServerLifecycleBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			testCtx := &serverBDDTestContext{}

			// Background
			sc.Given(`^I have a server configuration on an available port$`, testCtx.iHaveAServerConfigurationOnAnAvailablePort)

			// Transport variants
			sc.Given(`^HTTPS is enabled without certificate material$`, testCtx.httpsIsEnabledWithoutCertificateMaterial)
			sc.Given(`^a middleware stack tagging "([^"]*)" then "([^"]*)"$`, testCtx.aMiddlewareStackTagging)
			sc.Given(`^only a private key is configured$`, testCtx.onlyAPrivateKeyIsConfigured)

			// Lifecycle
			sc.When(`^the server is started$`, testCtx.theServerIsStarted)
			sc.When(`^a request is served$`, testCtx.aRequestIsServed)
			sc.When(`^the server is closed$`, testCtx.theServerIsClosed)

			// Assertions
			sc.Then(`^the listening event should be emitted with an (http|https) endpoint URL$`, testCtx.theListeningEventShouldCarryScheme)
			sc.Then(`^the server should accept HTTP requests$`, testCtx.theServerShouldAcceptRequests)
			sc.Then(`^the server should accept HTTPS requests$`, testCtx.theServerShouldAcceptRequests)
			sc.Then(`^socket connect and data events should be observed$`, testCtx.socketConnectAndDataEventsShouldBeObserved)
			sc.Then(`^the socket payload should carry humanized byte counters$`, testCtx.theSocketPayloadShouldCarryHumanizedByteCounters)
			sc.Then(`^the request should pass through "([^"]*)"$`, testCtx.theRequestShouldPassThrough)
			sc.Then(`^the close event should be emitted$`, testCtx.theCloseEventShouldBeEmitted)
			sc.Then(`^startup should fail with a configuration conflict$`, testCtx.startupShouldFailWithAConfigurationConflict)
			sc.Then(`^no listening event should ever be emitted$`, testCtx.noListeningEventShouldEverBeEmitted)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
