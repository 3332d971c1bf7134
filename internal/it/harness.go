package it

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"abdkv/internal/config"
	"abdkv/internal/coordinator"
	"abdkv/internal/history"
	"abdkv/internal/logger"
	"abdkv/internal/msg"
	"abdkv/internal/results"
	"abdkv/internal/transport"
	"abdkv/internal/transport/grpcnet"
)

// Cluster represents a set of gRPC hosts on the loopback interface. Every
// endpoint of a run (replicas and monitor) is assigned to one host and all
// envelopes travel through gRPC, also between endpoints on the same host.
type Cluster struct {
	hosts  []*grpcnet.Network
	book   map[msg.Address]string
	assign map[msg.Address]int
	logDir string
	mu     sync.Mutex
	closed bool
}

// Outcome is everything a test may want to assert on after a run.
type Outcome struct {
	Report  *coordinator.Report
	History []history.Operation
	Check   history.Result
	Results []results.Record
}

// NewCluster listens on hostCount loopback ports and spreads the monitor and
// replicas p0..p<replicas-1> over them round-robin.
func NewCluster(hostCount, replicas int, logDir string) (*Cluster, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	listeners := make([]net.Listener, hostCount)
	for i := range listeners {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			for _, l := range listeners[:i] {
				l.Close()
			}
			return nil, fmt.Errorf("failed to listen: %w", err)
		}
		listeners[i] = lis
	}

	c := &Cluster{
		book:   make(map[msg.Address]string),
		assign: make(map[msg.Address]int),
		logDir: logDir,
	}
	endpoints := []msg.Address{msg.MonitorAddress}
	for i := 0; i < replicas; i++ {
		endpoints = append(endpoints, msg.NodeAddress(i))
	}
	for i, addr := range endpoints {
		host := i % hostCount
		c.assign[addr] = host
		c.book[addr] = listeners[host].Addr().String()
	}
	for _, lis := range listeners {
		c.hosts = append(c.hosts, grpcnet.NewNetwork(lis, grpcnet.Options{Book: c.book}))
	}
	return c, nil
}

// Register creates addr's mailbox on the host it is assigned to.
func (c *Cluster) Register(addr msg.Address) (*transport.Mailbox, error) {
	host, ok := c.assign[addr]
	if !ok {
		return nil, fmt.Errorf("register %s: %w", addr, transport.ErrUnknownAddress)
	}
	return c.hosts[host].Register(addr)
}

// Send uses the outbound transport of the sender's host. Envelopes from the
// coordinator leave through the first host.
func (c *Cluster) Send(env msg.Envelope) error {
	return c.hosts[c.assign[env.From]].Send(env)
}

// Close stops all hosts.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	var firstErr error
	for _, h := range c.hosts {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run executes one benchmark over the cluster. Endpoints stay registered
// afterwards, so a Cluster serves a single run. The operation log and result
// file are written under the cluster's log directory unless cfg names them.
func (c *Cluster) Run(ctx context.Context, cfg config.Config) (*Outcome, error) {
	if cfg.LogPath == "" || cfg.LogPath == config.Default().LogPath {
		cfg.LogPath = filepath.Join(c.logDir, "operations.log")
	}
	if cfg.ResultsPath == "" || cfg.ResultsPath == config.Default().ResultsPath {
		cfg.ResultsPath = filepath.Join(c.logDir, "results."+cfg.ResultsFormat)
	}

	oplog, err := logger.Open(cfg.LogPath)
	if err != nil {
		return nil, err
	}
	sink, err := results.Open(cfg.ResultsFormat, cfg.ResultsPath)
	if err != nil {
		oplog.Close()
		return nil, err
	}

	report, runErr := coordinator.Run(ctx, cfg, coordinator.Options{
		Network: c,
		Log:     oplog,
		Sink:    sink,
	})
	oplog.Close()
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return &Outcome{Report: report}, runErr
	}

	out := &Outcome{Report: report}
	f, err := os.Open(cfg.LogPath)
	if err != nil {
		return out, fmt.Errorf("failed to reopen operation log: %w", err)
	}
	defer f.Close()
	if out.History, err = history.ParseLog(f); err != nil {
		return out, err
	}
	out.Check = history.Check(out.History, 0)

	switch cfg.ResultsFormat {
	case results.FormatSQLite, "sqlite3":
		db, err := results.OpenSQLite(cfg.ResultsPath)
		if err != nil {
			return out, err
		}
		defer db.Close()
		out.Results, err = db.Records()
		return out, err
	default:
		out.Results, err = results.ReadCSV(cfg.ResultsPath)
		return out, err
	}
}

var _ transport.Network = (*Cluster)(nil)
