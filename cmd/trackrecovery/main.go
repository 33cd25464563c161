// Command trackrecovery runs a track-to-cluster association pass over each
// event file given on the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trackrecovery/internal/config"
	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/geometry"
	"github.com/banshee-data/trackrecovery/internal/monitoring"
	"github.com/banshee-data/trackrecovery/internal/recovery"
	"github.com/banshee-data/trackrecovery/internal/security"
	"github.com/banshee-data/trackrecovery/internal/store"
	"github.com/banshee-data/trackrecovery/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "", "Tuning config (.json, .yaml or .yml); built-in defaults when empty")
	dbPath      = flag.String("db", "", "SQLite database for pass records (disabled when empty)")
	outDir      = flag.String("out", "", "Directory for per-event association reports (disabled when empty)")
	plotDir     = flag.String("plot-dir", "", "Directory for score histograms (disabled when empty)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address and wait for a signal after processing")
	workers     = flag.Int("workers", 1, "Number of events processed concurrently")
	logDiag     = flag.Bool("log-diag", false, "Write the diag log stream to stderr")
	logTrace    = flag.Bool("log-trace", false, "Write the trace log stream to stderr")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] event.json...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	writers := monitoring.LogWriters{Ops: os.Stderr}
	if *logDiag {
		writers.Diag = os.Stderr
	}
	if *logTrace {
		writers.Trace = os.Stderr
	}
	monitoring.SetLogWriters(writers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		log.Fatalf("trackrecovery: %v", err)
	}
}

// run processes every event path and then, when a metrics address is set,
// keeps serving metrics until ctx is cancelled.
func run(ctx context.Context, paths []string, stdout io.Writer) error {
	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			return err
		}
		tuning = loaded
	}

	reg := prometheus.NewRegistry()
	alg, err := recovery.NewAlgorithm(recovery.ConfigFromTuning(tuning), geometry.FromTuning(tuning), monitoring.NewMetrics(reg))
	if err != nil {
		return err
	}

	r := &runner{alg: alg, outDir: *outDir, stdout: stdout}

	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()
		r.store = st
	}
	if *plotDir != "" {
		r.plotter = monitoring.NewScorePlotter(40)
	}
	if r.outDir != "" {
		if err := os.MkdirAll(r.outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	var (
		srv      *http.Server
		serveErr = make(chan error, 1)
	)
	if *metricsAddr != "" {
		mux, err := newServeMux(reg, r.store)
		if err != nil {
			return err
		}
		// Bind before processing so an unusable address fails the run up front.
		ln, err := net.Listen("tcp", *metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		defer srv.Close()
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
		monitoring.Opsf("serving metrics on %s/metrics", ln.Addr())
	}

	if err := r.processAll(ctx, paths, reportNames(paths), *workers); err != nil {
		return err
	}

	if r.plotter != nil {
		files, err := r.plotter.GeneratePlots(*plotDir)
		if err != nil {
			return fmt.Errorf("failed to generate plots: %w", err)
		}
		for _, f := range files {
			monitoring.Opsf("wrote %s", f)
		}
	}

	if srv != nil {
		monitoring.Opsf("processing complete; serving metrics until interrupted")
		select {
		case err := <-serveErr:
			return fmt.Errorf("metrics server: %w", err)
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

// newServeMux builds the HTTP surface: /metrics, plus the database debug
// pages under /debug/ when a store is open.
func newServeMux(reg *prometheus.Registry, st *store.Store) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if st != nil {
		if err := st.AttachAdminRoutes(mux, filepath.Base(*dbPath)); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// runner applies one pass per event. Events are independent; a single pass
// never spans goroutines.
type runner struct {
	alg     *recovery.Algorithm
	store   *store.Store
	plotter *monitoring.ScorePlotter
	outDir  string

	mu     sync.Mutex
	stdout io.Writer
}

// processAll runs up to n events concurrently and stops scheduling new ones
// after the first failure.
func (r *runner) processAll(ctx context.Context, paths, reports []string, n int) error {
	g, gctx := errgroup.WithContext(ctx)
	if n < 1 {
		n = 1
	}
	g.SetLimit(n)

	for i, path := range paths {
		report := reports[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.processFile(path, report); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// processFile runs one event. report is the report file name used with -out.
func (r *runner) processFile(path, report string) error {
	ev, err := event.LoadFile(path)
	if err != nil {
		return err
	}
	defer ev.Reset()

	res, passErr := r.alg.Run(ev, ev)

	if r.store != nil {
		if err := r.store.InsertPass(ev.ID, res, passErr); err != nil {
			return errors.Join(passErr, err)
		}
	}
	if r.plotter != nil {
		committed := make([]float64, len(res.Associations))
		for i, a := range res.Associations {
			committed[i] = a.Score
		}
		r.plotter.Record(res.CandidateScores, committed)
	}
	if r.outDir != "" {
		if err := writeReport(filepath.Join(r.outDir, report), ev.ID, res, passErr); err != nil {
			return errors.Join(passErr, err)
		}
	}

	r.mu.Lock()
	fmt.Fprintf(r.stdout, "event %s: pass %s committed %d of %d candidates (%d tracks, %d clusters)\n",
		ev.ID, res.PassID, len(res.Associations), res.Stats.Candidates,
		res.Stats.EligibleTracks, res.Stats.EligibleClusters)
	r.mu.Unlock()

	return passErr
}

// Report is the JSON summary written per event with -out.
type Report struct {
	EventID          string              `json:"event_id"`
	PassID           string              `json:"pass_id"`
	Status           string              `json:"status"`
	Error            string              `json:"error,omitempty"`
	DurationMicros   int64               `json:"duration_us"`
	EligibleTracks   int                 `json:"eligible_tracks"`
	EligibleClusters int                 `json:"eligible_clusters"`
	PairsTested      int                 `json:"pairs_tested"`
	Candidates       int                 `json:"candidates"`
	Rejected         map[string]int      `json:"rejected"`
	Associations     []ReportAssociation `json:"associations"`
}

// ReportAssociation is one committed association in a Report.
type ReportAssociation struct {
	Step    int             `json:"step"`
	Track   event.TrackID   `json:"track"`
	Cluster event.ClusterID `json:"cluster"`
	Score   float64         `json:"score"`
}

func newReport(eventID string, res *recovery.PassResult, passErr error) Report {
	rep := Report{
		EventID:          eventID,
		PassID:           res.PassID.String(),
		Status:           monitoring.PassStatusOK,
		DurationMicros:   res.Duration.Microseconds(),
		EligibleTracks:   res.Stats.EligibleTracks,
		EligibleClusters: res.Stats.EligibleClusters,
		PairsTested:      res.Stats.PairsTested,
		Candidates:       res.Stats.Candidates,
		Rejected:         res.Stats.Rejected,
		Associations:     make([]ReportAssociation, 0, len(res.Associations)),
	}
	if passErr != nil {
		rep.Status = monitoring.PassStatusFailed
		rep.Error = passErr.Error()
	}
	for _, a := range res.Associations {
		rep.Associations = append(rep.Associations, ReportAssociation{
			Step: a.Step, Track: a.Track, Cluster: a.Cluster, Score: a.Score,
		})
	}
	return rep
}

func writeReport(path, eventID string, res *recovery.PassResult, passErr error) error {
	data, err := json.MarshalIndent(newReport(eventID, res, passErr), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// reportNames maps each event path to a distinct report file name. Paths
// whose names would collide get a "-<n>" suffix in argument order.
func reportNames(paths []string) []string {
	stems := make([]string, len(paths))
	count := make(map[string]int, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		stems[i] = security.SanitizeFilename(base[:len(base)-len(filepath.Ext(base))])
		count[stems[i]]++
	}

	used := make(map[string]bool, len(paths))
	names := make([]string, len(paths))
	for i, stem := range stems {
		name := stem
		if count[stem] > 1 {
			for n := 1; ; n++ {
				name = fmt.Sprintf("%s-%d", stem, n)
				if !used[name] && count[name] == 0 {
					break
				}
			}
		}
		used[name] = true
		names[i] = name + ".associations.json"
	}
	return names
}
