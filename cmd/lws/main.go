// Command lws starts a configurable HTTP, HTTPS or HTTP/2 server from flags,
// environment variables and an optional config file, and can mirror the
// verbose event stream to the console.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/lws"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &lws.ServerOptions{}
	var (
		configFile string
		stackNames []string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "lws",
		Short: "A configurable HTTP, HTTPS and HTTP/2 server",
		Long: `lws bootstraps an HTTP-family server: it selects a transport from the
given options, assembles the configured middleware stack and exposes every
lifecycle transition on a verbose event stream.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, configFile, stackNames, verbose)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.Port, "port", "p", 0, "port to listen on (default 8000)")
	flags.StringVar(&opts.Hostname, "hostname", "", "hostname to bind, all interfaces when empty")
	flags.IntVar(&opts.MaxConnections, "max-connections", 0, "cap on concurrent connections")
	flags.DurationVar(&opts.KeepAliveTimeout, "keep-alive-timeout", 0, "idle keep-alive timeout")
	flags.BoolVar(&opts.HTTPS, "https", false, "serve HTTPS")
	flags.BoolVar(&opts.HTTP2, "http2", false, "serve HTTP/2")
	flags.StringVar(&opts.Key, "key", "", "path to the PEM private key")
	flags.StringVar(&opts.Cert, "cert", "", "path to the PEM certificate")
	flags.StringVar(&opts.PFX, "pfx", "", "path to a PKCS#12 archive")
	flags.StringVar(&opts.Ciphers, "ciphers", "", "TLS cipher suite list")
	flags.StringVar(&opts.SecureProtocol, "secure-protocol", "", "minimum TLS protocol version")
	flags.StringVar(&opts.Server, "server", "", "custom server factory module")
	flags.StringSliceVar(&stackNames, "stack", nil, "middleware module names, in order")
	flags.StringVar(&opts.ModulePrefix, "module-prefix", "", `module name prefix (default "lws-")`)
	flags.StringSliceVar(&opts.ModuleDir, "module-dir", nil, "module registry namespaces to search")
	flags.StringVarP(&configFile, "config", "c", "", "config file (.toml, .yaml or .json)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print the verbose event stream")

	return cmd
}

func serve(ctx context.Context, opts *lws.ServerOptions, configFile string, stackNames []string, verbose bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	configFeeders := lws.ConfigFeeders
	if configFile != "" {
		fileFeeder, err := lws.FileFeeder(configFile)
		if err != nil {
			return err
		}
		// File first, environment last so the environment wins.
		configFeeders = append([]lws.Feeder{fileFeeder}, configFeeders...)
	}
	if err := lws.LoadOptions(opts, configFeeders...); err != nil {
		return err
	}

	for _, name := range stackNames {
		opts.Stack = append(opts.Stack, name)
	}

	listenOpts := []lws.ListenOption{
		lws.WithContext(ctx),
		lws.WithLogger(lws.NewSlogLogger(logger)),
	}
	if verbose {
		listenOpts = append(listenOpts, lws.WithObserver(newConsoleObserver()))
	}

	handle, err := lws.Listen(opts, listenOpts...)
	if err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return handle.Close(shutdownCtx)
}

// newConsoleObserver prints every verbose event as "key payload" on stdout.
func newConsoleObserver() lws.Observer {
	return lws.NewFunctionalObserver("console", func(_ context.Context, event cloudevents.Event) error {
		payload := event.Data()
		if len(payload) == 0 {
			fmt.Println(event.Type())
			return nil
		}
		fmt.Printf("%s %s\n", event.Type(), payload)
		return nil
	})
}
