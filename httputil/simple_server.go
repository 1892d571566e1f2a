package httputil

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjk/testdesk/log"
)

// NewServer returns http.Server with sane timeouts.
// Uploads of large attachments need long read timeout.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// RunUntilSignal starts httpSrv and blocks until SIGINT / SIGTERM or
// until ctx is cancelled, then shuts the server down
func RunUntilSignal(ctx context.Context, httpSrv *http.Server) error {
	chServerClosed := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		// mute error caused by Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		chServerClosed <- err
	}()
	log.Logf("started http server on '%s'\n", httpSrv.Addr)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt /* SIGINT */, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case err := <-chServerClosed:
		// failed to start, e.g. address in use
		return err
	case sig := <-c:
		log.Logf("got signal %s, shutting down\n", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpSrv.Shutdown(shutdownCtx)
	select {
	case err2 := <-chServerClosed:
		if err == nil {
			err = err2
		}
	case <-time.After(5 * time.Second):
		// timeout
	}
	return err
}
