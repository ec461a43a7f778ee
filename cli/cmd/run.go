package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecus-labs/creditrunner/adapter"
	redisadapter "github.com/pithecus-labs/creditrunner/adapter/redis"
	"github.com/pithecus-labs/creditrunner/adapter/webhook"
	"github.com/pithecus-labs/creditrunner/archival"
	"github.com/pithecus-labs/creditrunner/cancel"
	"github.com/pithecus-labs/creditrunner/config"
	"github.com/pithecus-labs/creditrunner/csvstore"
	"github.com/pithecus-labs/creditrunner/driver/httpdriver"
	"github.com/pithecus-labs/creditrunner/governor"
	"github.com/pithecus-labs/creditrunner/log"
	"github.com/pithecus-labs/creditrunner/metricsexport"
	"github.com/pithecus-labs/creditrunner/rcache"
	"github.com/pithecus-labs/creditrunner/registry"
	"github.com/pithecus-labs/creditrunner/report"
	"github.com/pithecus-labs/creditrunner/runner"
	"github.com/pithecus-labs/creditrunner/tools/employeefinder"
	"github.com/pithecus-labs/creditrunner/types"
	"github.com/pithecus-labs/creditrunner/wallet"
)

// Exit codes: a run that finishes or is cancelled exits 0, even when rows
// failed or a call was classified fatal (the runner records those as failed
// rows); a configuration error, or a failure to open the input, load the
// wallet, or build the tool entry, exits 1.
const (
	exitSuccess = 0
	exitError   = 1
)

// RunCommand returns the "run" command: the only execution entrypoint.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Execute a credit-aware job run (the only execution entrypoint)",
		Flags:  runFlags(),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.Exit("", exitError)
	}

	runMeta := &types.RunMeta{
		RunID:     uuid.New().String(),
		ToolID:    cfg.ToolID,
		Attempt:   1,
		InputPath: cfg.InputPath,
	}
	logger := log.NewLogger(runMeta)
	reporter := report.New(os.Stdout, logger)

	store, err := openStore(cfg)
	if err != nil {
		reporter.Log("error", fmt.Sprintf("open input: %v", err))
		return cli.Exit("", exitError)
	}
	defer store.Close()

	out := csvstore.NewOutputWriter(cfg.OutputPath)
	defer out.Close()

	seedPath := cfg.CredentialsPath
	persistedPath := cfg.CredentialsPath + ".wallet"
	w, err := wallet.Load(persistedPath, seedPath, cfg.PerCredentialLimit)
	if err != nil {
		reporter.Log("error", fmt.Sprintf("load wallet: %v", err))
		return cli.Exit("", exitError)
	}

	entry, err := buildRegistryEntry(cfg)
	if err != nil {
		reporter.Log("error", fmt.Sprintf("build tool registry entry: %v", err))
		return cli.Exit("", exitError)
	}

	gov := governor.New(cfg.MaxConcurrent, cfg.MaxRequestsPerSecond)

	exporter := metricsexport.New()
	if cfg.MetricsAddr != "" {
		exporter.Start(cfg.MetricsAddr, func(err error) {
			reporter.Log("warn", fmt.Sprintf("metrics endpoint: %v", err))
		})
		defer exporter.Stop(context.Background())
	}

	ctrl := cancel.New(context.Background(), cfg.StopFlagPath, func(types.StopCondition) {
		reporter.Status(runner.PhaseCancelling)
	})
	defer ctrl.Stop()

	jobRunner := runner.New(runner.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		ColumnMap:     cfg.ColumnMap,
		RunID:         runMeta.RunID,
	}, store, out, w, gov, entry, ctrl, &observingReporter{Reporter: reporter, exporter: exporter})

	startedAt := time.Now()
	jobRunner.Run(ctrl.Context())

	snap := jobRunner.Snapshot()
	notifyAdapter(cfg, jobRunner, snap, w.Snapshot(), startedAt, reporter)
	archiveRun(cfg, jobRunner.RunID(), cfg.OutputPath, w, reporter)

	return cli.Exit("", exitSuccess)
}

// observingReporter fans every metrics event out to the Prometheus
// Exporter in addition to the stdout line protocol, so the two side
// channels never drift out of sync.
type observingReporter struct {
	*report.Reporter
	exporter *metricsexport.Exporter
}

func (o *observingReporter) Metrics(m runner.Metrics) {
	o.Reporter.Metrics(m)
	o.exporter.Observe(m)
}

// resolveConfig merges the YAML, env-JSON, and CLI layers and validates
// the result.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	yamlLayer, err := config.LoadYAML(c.String("config"))
	if err != nil {
		return nil, err
	}
	envLayer, err := config.LoadEnvJSON()
	if err != nil {
		return nil, err
	}
	cliLayer, err := cliConfigLayer(c)
	if err != nil {
		return nil, err
	}

	merged := config.Merge(yamlLayer, envLayer, cliLayer)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// cliConfigLayer builds a Config holding only the flags the user actually
// set, so Merge's zero-value-means-unset overlay works correctly.
func cliConfigLayer(c *cli.Context) (*config.Config, error) {
	cl := &config.Config{}
	if c.IsSet("input") {
		cl.InputPath = c.String("input")
	}
	if c.IsSet("output") {
		cl.OutputPath = c.String("output")
	}
	if c.IsSet("credentials") {
		cl.CredentialsPath = c.String("credentials")
	}
	if c.IsSet("per-credential-limit") {
		cl.PerCredentialLimit = c.Int("per-credential-limit")
	}
	if c.IsSet("max-concurrent") {
		cl.MaxConcurrent = c.Int("max-concurrent")
	}
	if c.IsSet("max-rps") {
		cl.MaxRequestsPerSecond = c.Float64("max-rps")
	}
	if c.IsSet("retry-max") {
		cl.RetryMax = c.Int("retry-max")
	}
	if c.IsSet("batch-size") {
		cl.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("tool") {
		cl.ToolID = c.String("tool")
	}
	if c.IsSet("stop-flag-path") {
		cl.StopFlagPath = c.String("stop-flag-path")
	}
	if c.IsSet("endpoint") {
		cl.Endpoint = c.String("endpoint")
	}
	if c.IsSet("archival") {
		cl.Archival = c.String("archival")
	}
	if c.IsSet("adapter-kind") {
		cl.AdapterKind = c.String("adapter-kind")
	}
	if c.IsSet("adapter-url") {
		cl.AdapterURL = c.String("adapter-url")
	}
	if c.IsSet("metrics-addr") {
		cl.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("resume-cache-path") {
		cl.ResumeCachePath = c.String("resume-cache-path")
	}

	if pairs := c.StringSlice("column-map"); len(pairs) > 0 {
		cl.ColumnMap = make(map[string]string, len(pairs))
		for _, p := range pairs {
			field, col, ok := strings.Cut(p, "=")
			if !ok || field == "" {
				return nil, fmt.Errorf("invalid --column-map %q: expected field=Column", p)
			}
			cl.ColumnMap[field] = col
		}
	}

	return cl, nil
}

// openStore opens the input CSV, preferring a fresh-matching Resume Cache
// entry over a full re-parse. It always best-effort refreshes the cache
// sidecar afterward so the next invocation can benefit.
func openStore(cfg *config.Config) (*csvstore.Store, error) {
	if header, rows, ok := rcache.Load(cfg.ResumeCachePath, cfg.InputPath); ok {
		store, err := csvstore.OpenWithRows(cfg.InputPath, header, rows)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := csvstore.Open(cfg.InputPath)
	if err != nil {
		return nil, err
	}
	_ = rcache.Save(cfg.ResumeCachePath, cfg.InputPath, store.Header(), store.Rows())
	return store, nil
}

func buildRegistryEntry(cfg *config.Config) (*registry.Entry, error) {
	d, err := httpdriver.New(httpdriver.Config{
		Endpoint: cfg.Endpoint,
		RetryMax: cfg.RetryMax,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	reg.Register(employeefinder.Entry(d))

	return reg.Lookup(cfg.ToolID)
}

func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	switch cfg.AdapterKind {
	case "webhook":
		return webhook.New(webhook.Config{URL: cfg.AdapterURL})
	case "redis":
		return redisadapter.New(redisadapter.Config{URL: cfg.AdapterURL})
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", cfg.AdapterKind)
	}
}

func notifyAdapter(cfg *config.Config, r *runner.Runner, snap types.RunSnapshot, wsnap wallet.Snapshot, startedAt time.Time, reporter *report.Reporter) {
	if cfg.AdapterURL == "" {
		return
	}
	a, err := buildAdapter(cfg)
	if err != nil {
		reporter.Log("warn", fmt.Sprintf("adapter creation failed: %v", err))
		return
	}
	defer func() { _ = a.Close() }()

	outcome := "done"
	if snap.Cancelling {
		outcome = "stopped"
	}

	event := &adapter.RunCompletedEvent{
		RunID:             r.RunID(),
		ToolID:            cfg.ToolID,
		Outcome:           outcome,
		Total:             snap.Total,
		Processed:         snap.Processed,
		SkippedDone:       snap.SkippedDone,
		Succeeded:         snap.Succeeded,
		NoMatch:           snap.NoMatch,
		Failed:            snap.Failed,
		ActiveCredentials: wsnap.Active,
		BannedCredentials: wsnap.Banned,
		RemainingCredits:  wsnap.TotalRemaining,
		DurationMs:        time.Since(startedAt).Milliseconds(),
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()
	if err := a.Publish(ctx, event); err != nil {
		reporter.Log("warn", fmt.Sprintf("adapter notification failed: %v", err))
	}
}

func archiveRun(cfg *config.Config, runID, outputPath string, w *wallet.Wallet, reporter *report.Reporter) {
	if cfg.Archival == "" {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFn()

	sink, err := archival.New(ctx, cfg.Archival)
	if err != nil {
		reporter.Log("warn", fmt.Sprintf("archival sink setup failed: %v", err))
		return
	}
	if err := sink.UploadRun(ctx, runID, outputPath, w); err != nil {
		reporter.Log("warn", fmt.Sprintf("archival upload failed: %v", err))
	}
}
