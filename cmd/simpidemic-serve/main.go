// Command simpidemic-serve runs the HTTP API with the scenario store and
// blob backend chosen by environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"simpidemic/internal/adapters/httpapi"
	"simpidemic/internal/adapters/report"
	"simpidemic/internal/blob"
	"simpidemic/internal/core"
)

// EnvHTTPAddr overrides the listen address.
const EnvHTTPAddr = "SIMPIDEMIC_HTTP_ADDR"

const defaultAddr = ":8080"

var (
	exitFunc     = os.Exit
	notifyCtx    = signal.NotifyContext
	shutdownWait = 10 * time.Second
)

func main() {
	exitFunc(cli(os.Args[1:], os.Stderr))
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("simpidemic-serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen address (default $"+EnvHTTPAddr+" or "+defaultAddr+")")
	verbose := fs.Bool("v", false, "debug logging")
	traces := fs.Bool("trace", false, "write JSON trace spans to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := log.NewWithOptions(stderr, log.Options{ReportTimestamp: true, Prefix: "simpidemic-serve"})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	listen := *addr
	if listen == "" {
		listen = os.Getenv(EnvHTTPAddr)
	}
	if listen == "" {
		listen = defaultAddr
	}
	ctx, stop := notifyCtx(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		logger.Error("listen failed", "addr", listen, "err", err)
		return 1
	}
	var tracer core.Tracer
	if *traces {
		tracer = core.NewJSONTracer(stderr)
	}
	if err := serve(ctx, ln, logger, tracer); err != nil {
		logger.Error("server stopped", "err", err)
		return 1
	}
	return 0
}

// serve wires the stores, worker and router and blocks until ctx is done.
func serve(ctx context.Context, ln net.Listener, logger *log.Logger, tracer core.Tracer) error {
	store, err := core.OpenScenarioStore()
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open scenario store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	metrics := core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("simpidemic")}

	svc := core.NewService(store,
		core.WithServiceLogger(logger),
		core.WithServiceMetrics(metrics),
		core.WithServiceTracer(tracer),
	)
	worker := report.NewWorker(svc, report.NewExporter(blobs, logger),
		report.WithWorkerLogger(logger),
		report.WithWorkerMetrics(metrics),
	)
	worker.Start()

	srv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Config{
			Service:  svc,
			Worker:   worker,
			Blobs:    blobs,
			Logger:   logger,
			Gatherer: reg,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("listening", "addr", ln.Addr().String(), "blob", blobs.Driver())

	select {
	case err := <-errc:
		_ = worker.Stop(context.Background())
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	if werr := worker.Stop(shutdownCtx); err == nil {
		err = werr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	logger.Info("shut down")
	return err
}
