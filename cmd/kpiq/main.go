package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/config"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/server"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/tlsutil"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kpiq", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile  = fs.String("c", "", "Configuration file path")
		configFileL = fs.String("config", "", "Configuration file path")
		httpAddr    = fs.String("http-addr", "", "HTTP listen address (overrides config)")
		logLevel    = fs.String("log-level", "", "Log level (overrides config)")

		// One-shot mode
		sqlText   = fs.String("query", "", "Run one query and print the result instead of serving; - reads stdin")
		backendID = fs.String("backend", "NETWORKED", "Backend for -query: NETWORKED (P21) or FILEBASED (POR)")
		mode      = fs.String("mode", "PRODUCTION", "Mode for -query: PRODUCTION or TEST")
		connID    = fs.String("connection", "", "Connection ID for -query")
		tableHint = fs.String("table", "", "Table hint for -query")

		showHelp     = fs.Bool("h", false, "Show help")
		showHelpL    = fs.Bool("help", false, "Show help")
		showVersion  = fs.Bool("v", false, "Show version")
		showVersionL = fs.Bool("version", false, "Show version")
	)

	fs.Usage = func() {
		printUsage(stderr)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Coalesce short and long flags
	if *configFileL != "" {
		*configFile = *configFileL
	}
	if *showHelpL {
		*showHelp = true
	}
	if *showVersionL {
		*showVersion = true
	}

	if *showHelp {
		printUsage(stdout)
		return 0
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "error loading config: %v\n", err)
		return 1
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error in config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error starting: %v\n", err)
		return 1
	}
	defer a.Close()

	if *sqlText != "" {
		text := *sqlText
		if text == "-" {
			b, err := io.ReadAll(stdin)
			if err != nil {
				fmt.Fprintf(stderr, "error reading query: %v\n", err)
				return 1
			}
			text = string(b)
		}
		return runQuery(ctx, a, stdout, stderr, server.QueryRequest{
			BackendID:    *backendID,
			Mode:         *mode,
			SQLText:      text,
			ConnectionID: *connID,
			TableHint:    *tableHint,
		})
	}

	return serve(ctx, a, stdout, stderr)
}

func runQuery(ctx context.Context, a *app, stdout, stderr io.Writer, in server.QueryRequest) int {
	backend, err := query.ParseBackend(in.BackendID)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	mode, err := query.ParseMode(in.Mode)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	res := a.engine.Execute(ctx, query.Request{
		Backend:      backend,
		Mode:         mode,
		SQL:          in.SQLText,
		ConnectionID: in.ConnectionID,
		TableHint:    in.TableHint,
	})

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(server.NewQueryResponse(res)); err != nil {
		fmt.Fprintf(stderr, "error writing result: %v\n", err)
		return 1
	}
	if !res.Success {
		return 1
	}
	return 0
}

func serve(ctx context.Context, a *app, stdout, stderr io.Writer) int {
	scfg := server.DefaultConfig()
	scfg.Addr = a.cfg.HTTP.Addr
	scfg.Version = version.Version
	scfg.Gatherer = a.registry
	scfg.Connections = a.connections
	scfg.Logger = a.logger
	if d := time.Duration(a.cfg.ExecTimeout); d > 0 && d+5*time.Second > scfg.WriteTimeout {
		scfg.WriteTimeout = d + 5*time.Second
	}

	tlsConfig, err := tlsutil.ServerConfig(a.cfg.HTTP.TLS.Options())
	if err != nil {
		fmt.Fprintf(stderr, "error configuring TLS: %v\n", err)
		return 1
	}
	scfg.TLS = tlsConfig

	srv := server.New(a.engine, scfg)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(stderr, "error starting server: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "kpiq server started (version %s)\n", version.Version)
	fmt.Fprintf(stdout, "  Listening: %s\n", srv.Addr())
	fmt.Fprintf(stdout, "  Networked: %v  File-based: %v  Test: %v\n",
		a.cfg.Networked.Enabled, a.cfg.FileBased.Enabled, a.cfg.Test.Enabled)

	<-ctx.Done()
	a.logger.System().Info("shutdown signal received")
	fmt.Fprintln(stdout, "\nShutting down...")

	if err := srv.Stop(context.Background()); err != nil {
		fmt.Fprintf(stderr, "error stopping server: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Server stopped")
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `kpiq - KPI query engine for the P21 and POR dashboard backends

Usage:
  kpiq [options]

Server Options:
  -c, --config <file>      Configuration file path (YAML)
  --http-addr <addr>       HTTP listen address (default: :8080)
                           HTTPS is configured under http.tls in the config file
  --log-level <level>      Log level: debug, info, warn, error

One-shot Query:
  --query <sql>            Run one query, print the JSON result and exit ("-" reads stdin)
  --backend <id>           NETWORKED (P21) or FILEBASED (POR) (default: NETWORKED)
  --mode <mode>            PRODUCTION or TEST (default: PRODUCTION)
  --connection <id>        Reuse a networked session
  --table <name>           Table hint for the file-based backend

General:
  -h, --help               Show help
  -v, --version            Show version

Environment:
  KPIQ_* variables override the configuration file, for example
  KPIQ_NETWORKED_HOST, KPIQ_NETWORKED_PASSWORD and KPIQ_FILEBASED_PATH.

Examples:
  # Serve the HTTP API with a config file
  kpiq -c /etc/kpiq/config.yaml

  # Try a KPI against the embedded test data
  kpiq --mode TEST --backend POR --query "SELECT Count(*) AS value FROM Rentals WHERE Status = 'Open'"

Endpoints:
  POST   /api/query              Execute a stored KPI query
  DELETE /api/connections/{id}   Close a networked session
  GET    /api/tables             List tables of a backend
  GET    /health                 Health and open session count
  GET    /metrics                Prometheus metrics

Exit Codes:
  0  Success
  1  Runtime or query error
  2  CLI usage error
`)
}
