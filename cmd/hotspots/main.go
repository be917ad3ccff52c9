// Command hotspots finds congestion hot spots in a batch of vehicle GPS
// readings. It analyses one CSV file and writes the requested outputs, or
// serves the same pipeline over HTTP with -listen.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/congestion.report/internal/api"
	"github.com/banshee-data/congestion.report/internal/config"
	"github.com/banshee-data/congestion.report/internal/db"
	"github.com/banshee-data/congestion.report/internal/gpsio"
	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/notify"
	"github.com/banshee-data/congestion.report/internal/report"
	"github.com/banshee-data/congestion.report/internal/version"
)

var (
	input       = flag.String("input", "", "GPS CSV or xlsx file to analyse")
	configPath  = flag.String("config", "", "JSON tuning config (defaults apply when empty)")
	modelPath   = flag.String("model", "", "clustering model artifact overriding eps/min_pts")
	speedUnit   = flag.String("speed-unit", "", "unit of the input speed column (kph, kmph, mph, mps)")
	workers     = flag.Int("workers", -1, "neighbourhood workers; 0 uses every CPU, -1 keeps the config value")
	outCSV      = flag.String("out-csv", "", "write the labelled rows as CSV")
	outMap      = flag.String("out-map", "", "write the interactive HTML report")
	outPNG      = flag.String("out-png", "", "write a static PNG of the clusters")
	dbPath      = flag.String("db", "", "SQLite database recording each run (disabled when empty)")
	sendNotify  = flag.Bool("notify", false, "send an SMS per alerting cluster (TWILIO_* environment)")
	notifyTo    = flag.String("to", "", "destination number, overrides TWILIO_TO_NUMBER")
	dryRun      = flag.Bool("dry-run", false, "log notifications instead of sending them")
	listen      = flag.String("listen", "", "serve the HTTP API on this address instead of analysing -input")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *input == "" && *listen == "" {
		log.Fatal("either -input or -listen is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
	}

	var dispatcher *notify.Dispatcher
	if *sendNotify {
		dispatcher, err = newDispatcher(os.Getenv, cfg.GetAlertSpeedFilterEnabled())
		if err != nil {
			log.Fatalf("failed to configure notifications: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		if err := serve(ctx, cfg, store, dispatcher); err != nil {
			log.Fatalf("server failed: %v", err)
		}
		return
	}

	if err := analyzeFile(ctx, cfg, store, dispatcher, os.Stdout); err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
}

// loadConfig reads -config and applies the command-line overrides.
func loadConfig() (*config.HotspotConfig, error) {
	cfg := config.DefaultHotspotConfig()
	if *configPath != "" {
		loaded, err := config.LoadHotspotConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *modelPath != "" {
		cfg.ModelPath = modelPath
	}
	if *speedUnit != "" {
		cfg.SpeedUnit = speedUnit
	}
	if *workers >= 0 {
		cfg.Workers = workers
	}
	return cfg, cfg.Validate()
}

// newDispatcher builds the SMS dispatcher from the environment.
func newDispatcher(getenv func(string) string, includeSpeed bool) (*notify.Dispatcher, error) {
	creds, to := notify.TwilioFromEnv(getenv)
	if *notifyTo != "" {
		to = *notifyTo
	}
	if to == "" {
		return nil, fmt.Errorf("%w: set -to or %s", notify.ErrMissingCredentials, notify.EnvToNumber)
	}

	var sender notify.Sender = notify.LogSender{}
	if !*dryRun {
		twilio, err := notify.NewTwilioSender(creds, nil)
		if err != nil {
			return nil, err
		}
		sender = twilio
	}
	return notify.NewDispatcher(sender, to, includeSpeed)
}

func resolveParams(cfg *config.HotspotConfig) (hotspot.Params, error) {
	var model *config.ModelArtifact
	if path := cfg.GetModelPath(); path != "" {
		m, err := config.LoadModelArtifact(path)
		if err != nil {
			return hotspot.Params{}, err
		}
		model = m
	}
	return cfg.Params(model), nil
}

// analyzeFile runs the pipeline over -input and writes every requested
// output. A summary table goes to out.
func analyzeFile(ctx context.Context, cfg *config.HotspotConfig, store *db.DB, dispatcher *notify.Dispatcher, out io.Writer) error {
	params, err := resolveParams(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(*input)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := gpsio.Read(f, gpsio.DetectFormat(*input, ""), gpsio.ReadOptions{SpeedUnit: cfg.GetSpeedUnit()})
	if err != nil {
		return err
	}

	analyzer, err := hotspot.NewAnalyzer(params)
	if err != nil {
		return err
	}
	res, err := analyzer.Analyze(table.Samples)
	if err != nil {
		return err
	}

	printSummary(out, res)

	if err := writeOutputs(table, res); err != nil {
		return err
	}

	if store != nil {
		run, err := store.SaveRun(ctx, db.RunInput{
			Source:     filepath.Base(*input),
			AppVersion: version.Version,
			Params:     params,
			Samples:    table.Samples,
			Result:     res,
		})
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		fmt.Fprintf(out, "run %s saved\n", run.ID)
	}

	if dispatcher != nil {
		rep := dispatcher.Dispatch(ctx, res.Alerts)
		fmt.Fprintln(out, rep.Summary())
		if rep.Failed > 0 {
			return errors.Join(rep.Errors()...)
		}
	}
	return nil
}

func printSummary(out io.Writer, res *hotspot.Result) {
	fmt.Fprintf(out, "%d clusters, %d noise points, %d alerts\n", len(res.Summaries), res.NoiseCount, len(res.Alerts))
	if len(res.Summaries) == 0 {
		return
	}
	fmt.Fprintf(out, "%8s %6s %12s %12s %10s %6s\n", "cluster", "size", "lat", "lon", "km/h", "alert")
	for i, s := range res.Summaries {
		alert := ""
		if res.Decisions[i].Triggered {
			alert = res.Decisions[i].Reason.String()
		}
		fmt.Fprintf(out, "%8d %6d %12.5f %12.5f %10.1f %6s\n", s.ClusterID, s.Size, s.CentroidLat, s.CentroidLon, s.MeanSpeed, alert)
	}
}

func writeOutputs(table *gpsio.Table, res *hotspot.Result) error {
	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{*outCSV, func(w io.Writer) error { return gpsio.WriteResultCSV(w, table, res) }},
		{*outMap, func(w io.Writer) error { return report.WriteSummaryPage(w, table.Samples, res) }},
		{*outPNG, func(w io.Writer) error { return report.WriteClusterPlotPNG(w, table.Samples, res.Labels) }},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := writeFile(o.path, o.write); err != nil {
			return err
		}
		log.Printf("wrote %s", o.path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func serve(ctx context.Context, cfg *config.HotspotConfig, store *db.DB, dispatcher *notify.Dispatcher) error {
	srv := api.NewServer(api.Config{
		Hotspot:    cfg,
		Store:      store,
		Dispatcher: dispatcher,
		AppVersion: version.Version,
	})
	mux := srv.ServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %s %q", r.Method, r.URL.Path)
		mux.ServeHTTP(w, r)
	})
	server := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
