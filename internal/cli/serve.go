package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/weft"
	httpadapter "github.com/aretw0/weft/pkg/adapters/http"
	"github.com/aretw0/weft/pkg/adapters/websocket"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long running requests and sessions get to finish
// once the server is asked to stop.
const ShutdownTimeout = 5 * time.Second

// Handler exposes itp over HTTP: the JSON API, the websocket transport when a
// path is configured, and nothing else. Metrics are served apart.
func (rt *Runtime) Handler(itp *weft.Interpreter, program weft.Program) http.Handler {
	r := chi.NewRouter()
	if path := rt.Config.Websocket.Path; path != "" {
		r.Handle(path, websocket.Handler(itp,
			websocket.WithName("inbound"),
			websocket.WithOperations(program.Interface...),
			websocket.WithReadTimeout(rt.Config.Websocket.ReadTimeout),
			websocket.WithLogger(rt.Logger),
		))
	}
	r.Mount("/", httpadapter.NewHandler(itp,
		httpadapter.WithStreams(rt.Streams),
		httpadapter.WithTimeout(rt.Config.HTTP.Timeout),
		httpadapter.WithLogger(rt.Logger),
	))
	return r
}

// Serve runs program until ctx is cancelled, then drains the HTTP servers and
// the interpreter.
func Serve(ctx context.Context, rt *Runtime, program weft.Program) error {
	itp, err := rt.NewInterpreter(program)
	if err != nil {
		return err
	}
	if err := itp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", program.Name, err)
	}

	servers := []*http.Server{{Addr: rt.Config.HTTP.Addr, Handler: rt.Handler(itp, program)}}
	if addr := rt.Config.Metrics.Addr; addr != "" {
		servers = append(servers, &http.Server{Addr: addr, Handler: rt.Metrics.Handler()})
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			_ = itp.Shutdown(context.WithoutCancel(ctx))
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, ln)
		rt.Logger.Info("Listening", "addr", ln.Addr().String(), "program", program.Name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		ln := listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		rt.Logger.Info("Start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rt.Logger.Warn("Graceful shutdown did not complete", "addr", srv.Addr, "err", err)
				errs = append(errs, srv.Close())
			}
		}
		errs = append(errs, itp.Shutdown(shutdownCtx))
		rt.Logger.Info("Server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}
