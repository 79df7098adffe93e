// Command engine is the CLI front end wiring the option reader, Config, the
// rule-graph-directed evaluator, and the memoization substrate together
// into a runnable binary, grounded on the cobra-based command trees in
// _examples/theRebelliousNerd-codenerd's cmd/nerd and
// _examples/Freitascorp-devopsclaw's cmd/devopsclaw.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dagrule/engine/internal/config"
	"github.com/dagrule/engine/internal/engine"
	"github.com/dagrule/engine/internal/intrinsics"
	"github.com/dagrule/engine/internal/localrt"
	"github.com/dagrule/engine/internal/option"
	"github.com/dagrule/engine/internal/params"
	"github.com/dagrule/engine/internal/rulegraph"
	"github.com/dagrule/engine/internal/substrate"
	"github.com/dagrule/engine/internal/trace"
	"github.com/dagrule/engine/internal/value"
	"github.com/dagrule/engine/internal/watch"
	"github.com/dagrule/engine/internal/workunit"
)

// Option ids recognized by the reader (§4.K). "run" is the subcommand
// scope: --run-product and --product (while inside the "run" scope) both
// match productID, the same explicit/implicit scope-matching rule
// option.arg.matches implements.
var (
	buildRootID  = option.OptionID{Scope: option.Global, Name: []string{"build", "root"}}
	storeDirID   = option.OptionID{Scope: option.Global, Name: []string{"store", "dir"}}
	verboseID    = option.OptionID{Scope: option.Global, Name: []string{"verbose"}, ShortName: "v"}
	mqttBrokerID = option.OptionID{Scope: option.Global, Name: []string{"mqtt", "broker"}}
	productID    = option.OptionID{Scope: option.NamedScope("run"), Name: []string{"product"}}
)

// resolvedOptions is what cmd/engine actually configures itself from,
// produced by reading os.Args[1:] through internal/option's scope-aware
// tokenizer rather than letting cobra's own flag parser be the sole source
// of truth for option values (§4.K is a real, exercised component of this
// binary, not a parallel unused implementation). Cobra's PersistentFlags
// still register --help text, defaults, and MarkFlagRequired validation;
// option.ArgsReader resolves the values a `run` invocation actually uses.
type resolvedOptions struct {
	buildRoot  string
	storeDir   string
	verbose    bool
	mqttBroker string
	product    string
	tracker    *option.ArgsTracker
}

func resolveOptions(rawArgs []string) (*resolvedOptions, error) {
	args := option.NewArgs(rawArgs, "engine")
	reader := option.NewArgsReader(args)

	out := &resolvedOptions{buildRoot: buildRoot, storeDir: storeDir, verbose: verbose, mqttBroker: mqttBroker, product: product}

	if v, ok, err := reader.GetString(buildRootID); err != nil {
		return nil, err
	} else if ok {
		out.buildRoot = v
	}
	if v, ok, err := reader.GetString(storeDirID); err != nil {
		return nil, err
	} else if ok {
		out.storeDir = v
	}
	if v, ok, err := reader.GetBool(verboseID); err != nil {
		return nil, err
	} else if ok {
		out.verbose = v
	}
	if v, ok, err := reader.GetString(mqttBrokerID); err != nil {
		return nil, err
	} else if ok {
		out.mqttBroker = v
	}
	if v, ok, err := reader.GetString(productID); err != nil {
		return nil, err
	} else if ok {
		out.product = v
	}

	out.tracker = reader.Tracker()
	return out, nil
}

var (
	buildRoot  string
	storeDir   string
	verbose    bool
	mqttBroker string
	traceFlag  bool
)

// product is the name of the product type a `run` invocation requests,
// resolved through the registered rule graph.
var product string

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Demand-driven rule-graph evaluator",
	Long: `engine evaluates a product request against a precomputed rule
graph, memoizing every intermediate node and invalidating results whose
filesystem inputs change underneath them.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve one product request through the rule graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := resolveOptions(os.Args[1:])
		if err != nil {
			return fmt.Errorf("parsing options: %w", err)
		}

		zlog, err := buildZapLogger(opts.verbose)
		if err != nil {
			return err
		}
		defer zlog.Sync()

		if unused := opts.tracker.UnconsumedFlags(); len(unused) > 0 {
			zlog.Sugar().Debugw("unused flags", "byScope", unused)
		}

		cfg, err := buildConfig(zlog, opts)
		if err != nil {
			return err
		}

		w, err := watch.New()
		if err != nil {
			return fmt.Errorf("starting filesystem watcher: %w", err)
		}
		defer w.Close()

		rt := &engine.Runtime{
			Graph:  rulegraph.NewMemGraph(),
			Bridge: value.NewBridge(),
			VFS:    cfg.VFS,
			Store:  cfg.Store,
			HTTP:   cfg.HTTP,
			Runner: cfg.Runner,
		}
		intrinsics.RegisterAll(rt)

		graph := rt.Graph.(*rulegraph.MemGraph)
		registerBuiltinProducts(graph)

		wuStore := workunit.New(config.NewMQTTClient(cfg), cfg.MQTTTopic)

		var tracer *trace.Tracer
		if traceFlag {
			tracer = trace.NewTracer()
		}

		sub := substrate.New(rt, w, wuStore, tracer)
		rt.Substrate = sub

		productType := value.NewTypeId(opts.product)
		entry, ok := graph.EntryForProduct(productType)
		if !ok {
			return fmt.Errorf("no rule or intrinsic registered for product %q", opts.product)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		sel := engine.NewSelect(params.New(), productType, entry)
		res, err := sub.Get(ctx, sel)
		if tracer != nil {
			fmt.Fprint(os.Stderr, tracer.Dump())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%+v\n", res)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&buildRoot, "build-root", ".", "root directory glob expansion and digesting resolve against")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", ".dagrule/store", "local content-addressed store directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL to fan completed workunit spans out to")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "record a trace panel per node execution and dump it to stderr on completion")

	runCmd.Flags().StringVar(&product, "product", "", "product type name to resolve")
	runCmd.MarkFlagRequired("product")

	rootCmd.AddCommand(runCmd)
}

func buildZapLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

func buildConfig(zlog *zap.Logger, opts *resolvedOptions) (*config.Config, error) {
	store, err := localrt.NewStore(opts.storeDir)
	if err != nil {
		return nil, err
	}
	return config.New(
		config.WithLogger(config.NewZapLogger(zlog)),
		config.WithBuildRoot(opts.buildRoot),
		config.WithStoreDir(opts.storeDir),
		config.WithMQTT(opts.mqttBroker, ""),
		config.WithVFS(localrt.NewFS(opts.buildRoot, nil)),
		config.WithStore(store),
		config.WithHTTP(localrt.NewHTTPClient()),
		config.WithRunner(localrt.NewRunner()),
	)
}

// registerBuiltinProducts wires every leaf-node product type the intrinsics
// package handles as a selectable product in graph, so `run --product=Digest`
// etc. find a rule-graph entry without a user-authored rule. `run` starts
// from empty Params, so each of these then fails with a Throw for its
// missing input Param.
func registerBuiltinProducts(graph *rulegraph.MemGraph) {
	graph.RegisterParam(value.NewTypeId("PathGlobs"))
	graph.RegisterParam(value.NewTypeId("FilePath"))
	graph.RegisterParam(value.NewTypeId("DownloadedFileKey"))
	graph.RegisterParam(value.NewTypeId("MultiPlatformExecuteProcessKey"))

	graph.RegisterIntrinsic(value.NewTypeId("Digest"), []rulegraph.TypeId{value.NewTypeId("FilePath")})
	graph.RegisterIntrinsic(value.NewTypeId("LinkDest"), []rulegraph.TypeId{value.NewTypeId("FilePath")})
	graph.RegisterIntrinsic(value.NewTypeId("DirectoryListing"), []rulegraph.TypeId{value.NewTypeId("FilePath")})
	graph.RegisterIntrinsic(value.NewTypeId("Snapshot"), []rulegraph.TypeId{value.NewTypeId("PathGlobs")})
	graph.RegisterIntrinsic(value.NewTypeId("DownloadedFile"), []rulegraph.TypeId{value.NewTypeId("DownloadedFileKey")})
	graph.RegisterIntrinsic(value.NewTypeId("ProcessResult"), []rulegraph.TypeId{value.NewTypeId("MultiPlatformExecuteProcessKey")})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
