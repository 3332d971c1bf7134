package main

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abdkv/internal/config"
	"abdkv/internal/coordinator"
	"abdkv/internal/node"
	"abdkv/internal/results"
	"abdkv/internal/transport"
)

func TestOpenNetwork_Memory(t *testing.T) {
	network, err := openNetwork(config.Default())
	require.NoError(t, err)
	defer network.Close()

	_, ok := network.(*transport.MemoryNetwork)
	assert.True(t, ok)
}

func TestOpenNetwork_GRPCRunCompletes(t *testing.T) {
	tests := []struct {
		name    string
		n, f, m int
	}{
		{"no faults", 3, 0, 1},
		{"one fault", 3, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Replicas, cfg.Faults, cfg.Operations = tt.n, tt.f, tt.m
			cfg.Transport = config.TransportGRPC
			require.NoError(t, cfg.Validate())

			network, err := openNetwork(cfg)
			require.NoError(t, err)
			defer network.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sink := &results.MemorySink{}
			report, err := coordinator.Run(ctx, cfg, coordinator.Options{
				Network: network,
				Sink:    sink,
				Rand:    rand.New(rand.NewSource(3)),
			})
			require.NoError(t, err)

			completed := 0
			for _, snap := range report.Nodes {
				if snap.State == node.Completed {
					completed++
					assert.Equal(t, 2*tt.m, snap.Completed)
				}
			}
			assert.Equal(t, tt.n-tt.f, completed)
			assert.Len(t, sink.Records(), 1)
		})
	}
}
