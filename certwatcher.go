package lws

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// certReloader serves a PEM key/cert file pair through tls.Config's
// GetCertificate hook and reloads the pair when either file changes on disk.
// Certificate rotation then takes effect on new connections without a server
// restart; each change is reported as a "server.cert.change" verbose event.
type certReloader struct {
	certFile string
	keyFile  string

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher *fsnotify.Watcher
}

// newCertReloader loads the initial keypair. The pair must be valid at
// startup; later reload failures keep the previous keypair in service.
func newCertReloader(certFile, keyFile string) (*certReloader, error) {
	r := &certReloader{certFile: certFile, keyFile: keyFile}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// GetCertificate implements the tls.Config hook.
func (r *certReloader) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, ErrTLSMaterialMissing
	}
	return r.cert, nil
}

func (r *certReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("loading keypair %s / %s: %w", r.certFile, r.keyFile, err)
	}

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// watch reports file changes until the context is cancelled or the watcher
// is closed. Failed reloads are logged and reported on the stream; the
// previous keypair stays in service.
func (r *certReloader) watch(ctx context.Context, agg *Aggregator, logger Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating certificate watcher: %w", err)
	}
	r.watcher = watcher

	for _, path := range []string{r.certFile, r.keyFile} {
		if err := watcher.Add(path); err != nil {
			closeErr := watcher.Close()
			if closeErr != nil {
				logger.Warn("Failed to close certificate watcher", "error", closeErr)
			}
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				payload := map[string]any{"file": event.Name}
				if reloadErr := r.reload(); reloadErr != nil {
					logger.Error("Certificate reload failed", "file", event.Name, "error", reloadErr)
					payload["err"] = reloadErr.Error()
				} else {
					logger.Info("Certificate reloaded", "file", event.Name)
				}
				agg.Emit(ctx, EventServerCertChange, payload)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Certificate watcher error", "error", watchErr)
			}
		}
	}()

	return nil
}

// close stops the file watcher. Safe to call when watch was never started.
func (r *certReloader) close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close() //nolint:wrapcheck // watcher contract passthrough
}
