package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"abdkv/internal/config"
	"abdkv/internal/coordinator"
	"abdkv/internal/history"
	"abdkv/internal/logger"
	"abdkv/internal/results"
	"abdkv/internal/transport"
	"abdkv/internal/transport/grpcnet"
)

var (
	configFile    = flag.String("config", "", "YAML config `file`; flags and positional arguments override it")
	logPath       = flag.String("log", "", "Operation log `file`, truncated on every run")
	resultsPath   = flag.String("results", "", "Append-only results `file`")
	resultsFormat = flag.String("format", "", "Results `format`: csv or sqlite")
	transportKind = flag.String("transport", "", "Message `transport`: memory or grpc")
	listen        = flag.String("listen", "", "Listen `address` for the grpc transport")
	seed          = flag.Int64("seed", 0, "Crash selection `seed`, 0 for random")
	deadline      = flag.Duration("deadline", 0, "Abort the run after this `duration`, 0 waits forever")
	quiet         = flag.Bool("quiet", false, "Mute the operation log, the file is still truncated")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage:\n")
	fmt.Fprintf(out, "  %s [flags] [N f M]   run a benchmark with N replicas, f crashed, M puts per replica\n", os.Args[0])
	fmt.Fprintf(out, "  %s check <log>       check an operation log for linearizability\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() > 0 && flag.Arg(0) == "check" {
		if flag.NArg() != 2 {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(runCheck(flag.Arg(1)))
	}

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		log.Printf("[abdbench] %v", err)
		os.Exit(1)
	}
}

// buildConfig layers defaults, the config file, explicitly set flags and the
// positional N f M, in that order.
func buildConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log":
			cfg.LogPath = *logPath
		case "results":
			cfg.ResultsPath = *resultsPath
		case "format":
			cfg.ResultsFormat = *resultsFormat
		case "transport":
			cfg.Transport = *transportKind
		case "listen":
			cfg.Listen = *listen
		case "seed":
			cfg.Seed = *seed
		case "deadline":
			cfg.Deadline = *deadline
		}
	})

	switch flag.NArg() {
	case 0:
	case 3:
		targets := []*int{&cfg.Replicas, &cfg.Faults, &cfg.Operations}
		for i, dst := range targets {
			v, err := strconv.Atoi(flag.Arg(i))
			if err != nil {
				return cfg, fmt.Errorf("argument %d must be an integer: %q", i+1, flag.Arg(i))
			}
			*dst = v
		}
	default:
		return cfg, fmt.Errorf("expected N f M, got %d arguments", flag.NArg())
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	oplog, err := logger.Open(cfg.LogPath)
	if err != nil {
		return err
	}
	defer oplog.Close()
	oplog.SetMuted(*quiet)

	sink, err := results.Open(cfg.ResultsFormat, cfg.ResultsPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	network, err := openNetwork(cfg)
	if err != nil {
		return err
	}
	defer network.Close()

	report, err := coordinator.Run(ctx, cfg, coordinator.Options{
		Network: network,
		Log:     oplog,
		Sink:    sink,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("run did not finish within %s: %w", cfg.Deadline, err)
		}
		return err
	}

	rec := report.Record
	fmt.Printf("run %s: N=%d f=%d M=%d crashed=%v elapsed=%dms\n",
		rec.RunID, rec.Replicas, rec.Faults, rec.Operations, report.Crashed, rec.ElapsedMillis)
	if !*quiet {
		fmt.Printf("operation log: %s\n", oplog.Path())
	}
	return nil
}

func openNetwork(cfg config.Config) (transport.Network, error) {
	if cfg.Transport != config.TransportGRPC {
		return transport.NewMemoryNetwork(), nil
	}
	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	// the coordinator registers every endpoint here, so all traffic loops
	// back to this listener
	return grpcnet.NewNetwork(lis, grpcnet.Options{
		Fallback: lis.Addr().String(),
	}), nil
}

func runCheck(path string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer f.Close()

	ops, err := history.ParseLog(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 2
	}

	res := history.Check(ops, 0)
	switch {
	case res.Linearizable:
		fmt.Printf("%s: %d operations, linearizable\n", path, len(ops))
		return 0
	case res.Exhausted:
		fmt.Printf("%s: %d operations, search limit reached, undetermined\n", path, len(ops))
		return 3
	default:
		fmt.Printf("%s: %d operations, NOT linearizable\n", path, len(ops))
		return 1
	}
}
