package collector

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"draftgap/internal/logger"
)

// SetupSignalHandler returns a context that is cancelled on SIGTERM or SIGINT,
// after calling shutdownFunc. A second signal exits the process. The returned
// stop function releases the handler.
func SetupSignalHandler(parent context.Context, shutdownFunc func(context.Context)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	log := logger.Named("signal")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			log.Info(ctx, "received signal, stopping run and discarding the match in flight", logger.String("signal", sig.String()))
			if shutdownFunc != nil {
				shutdownFunc(ctx)
			}
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			log.Warn(ctx, "received second signal, forcing exit", logger.String("signal", sig.String()))
			os.Exit(1)
		case <-done:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
		cancel()
	}
	return ctx, stop
}
