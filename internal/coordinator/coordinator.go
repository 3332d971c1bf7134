// Package coordinator sets up one benchmark run: it creates the replicas and
// the completion monitor, configures every replica, crashes f of them chosen
// at random and launches the rest.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"abdkv/internal/config"
	"abdkv/internal/history"
	"abdkv/internal/logger"
	"abdkv/internal/monitor"
	"abdkv/internal/msg"
	"abdkv/internal/node"
	"abdkv/internal/results"
	"abdkv/internal/transport"
)

// Options supplies the collaborators of a run. Zero values are replaced by
// an in-memory network, no operation log, no recorder and no result sink.
type Options struct {
	Network  transport.Network
	Log      *logger.Logger
	Recorder history.Recorder
	Sink     results.Sink
	// Rand selects the crashed replicas. When nil it is seeded from cfg.Seed,
	// or from the clock if that is zero.
	Rand *rand.Rand
}

// Report describes a finished run.
type Report struct {
	Record  results.Record
	Crashed []msg.Address
	Nodes   []node.Snapshot
}

// Run executes one benchmark run and blocks until every live replica has
// completed its operations or ctx is done.
func Run(ctx context.Context, cfg config.Config, opts Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Tolerable() {
		log.Printf("[%s] warning: %d of %d replicas crashed leaves no live majority, run will not finish",
			msg.CoordinatorAddress, cfg.Faults, cfg.Replicas)
	}

	network := opts.Network
	if network == nil {
		mem := transport.NewMemoryNetwork()
		defer mem.Close()
		network = mem
	}
	rng := opts.Rand
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}

	rec := results.Record{
		RunID:      uuid.NewString(),
		Replicas:   cfg.Replicas,
		Faults:     cfg.Faults,
		Operations: cfg.Operations,
	}
	opts.Log.Log("run %s: N=%d f=%d M=%d", rec.RunID, rec.Replicas, rec.Faults, rec.Operations)

	monBox, err := network.Register(msg.MonitorAddress)
	if err != nil {
		return nil, fmt.Errorf("register monitor: %w", err)
	}
	nodes := make([]*node.Node, cfg.Replicas)
	boxes := make([]*transport.Mailbox, cfg.Replicas)
	peers := make([]msg.Address, cfg.Replicas)
	for i := range nodes {
		nodes[i] = node.New(i, network,
			node.WithOperationLog(opts.Log),
			node.WithRecorder(opts.Recorder),
		)
		peers[i] = nodes[i].Address()
		if boxes[i], err = network.Register(peers[i]); err != nil {
			return nil, fmt.Errorf("register %s: %w", peers[i], err)
		}
	}
	mon := monitor.New(rec, cfg.Replicas-cfg.Faults, opts.Sink)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return mon.Run(gctx, monBox)
	})
	for i := range nodes {
		nd, mb := nodes[i], boxes[i]
		g.Go(func() error {
			return nd.Run(gctx, mb)
		})
	}

	crashed := pickCrashed(rng, cfg.Replicas, cfg.Faults)
	runErr := start(network, peers, cfg.Operations, crashed)
	if runErr == nil {
		select {
		case <-mon.Done():
		case <-gctx.Done():
			runErr = ctx.Err()
		}
	}
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	report := &Report{Record: rec}
	for _, i := range crashed {
		report.Crashed = append(report.Crashed, peers[i])
	}
	for _, nd := range nodes {
		report.Nodes = append(report.Nodes, nd.Snapshot())
	}
	if runErr != nil {
		return report, runErr
	}

	report.Record, err = mon.Result()
	if err != nil {
		return report, err
	}
	log.Printf("[%s] run %s finished in %dms", msg.CoordinatorAddress, rec.RunID, report.Record.ElapsedMillis)
	return report, nil
}

// start configures every replica before any of them is crashed or launched.
func start(out transport.Sender, peers []msg.Address, operations int, crashed []int) error {
	send := func(to msg.Address, m msg.Message) error {
		if err := out.Send(msg.Envelope{From: msg.CoordinatorAddress, To: to, Body: m}); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		return nil
	}

	for _, p := range peers {
		if err := send(p, msg.PeerConfig{Peers: peers, Monitor: msg.MonitorAddress}); err != nil {
			return err
		}
		if err := send(p, msg.OperationCountConfig{Operations: operations}); err != nil {
			return err
		}
	}

	isCrashed := make(map[int]bool, len(crashed))
	for _, i := range crashed {
		isCrashed[i] = true
		if err := send(peers[i], msg.CrashSignal{}); err != nil {
			return err
		}
	}
	for i, p := range peers {
		if isCrashed[i] {
			continue
		}
		if err := send(p, msg.LaunchSignal{}); err != nil {
			return err
		}
	}
	return nil
}

// pickCrashed returns f distinct indexes in [0, n), chosen uniformly at random, sorted.
func pickCrashed(rng *rand.Rand, n, f int) []int {
	crashed := append([]int(nil), rng.Perm(n)[:f]...)
	sort.Ints(crashed)
	return crashed
}
