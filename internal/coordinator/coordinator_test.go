package coordinator

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abdkv/internal/config"
	"abdkv/internal/history"
	"abdkv/internal/logger"
	"abdkv/internal/msg"
	"abdkv/internal/node"
	"abdkv/internal/results"
)

func benchConfig(n, f, m int) config.Config {
	cfg := config.Default()
	cfg.Replicas, cfg.Faults, cfg.Operations = n, f, m
	return cfg
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		n, f, m int
	}{
		{"single replica", 1, 0, 2},
		{"no faults", 3, 0, 1},
		{"one fault", 3, 1, 2},
		{"two of five", 5, 2, 3},
		{"no operations", 4, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &results.MemorySink{}
			rec := &history.Log{}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			report, err := Run(ctx, benchConfig(tt.n, tt.f, tt.m), Options{
				Sink:     sink,
				Recorder: rec,
				Rand:     rand.New(rand.NewSource(1)),
			})
			require.NoError(t, err)

			assert.Len(t, report.Crashed, tt.f)
			require.Len(t, report.Nodes, tt.n)
			live := 0
			for _, snap := range report.Nodes {
				if snap.State == node.Crashed {
					assert.Contains(t, report.Crashed, snap.Address)
					continue
				}
				live++
				assert.Equal(t, node.Completed, snap.State)
				assert.Equal(t, 2*tt.m, snap.Completed)
			}
			assert.Equal(t, tt.n-tt.f, live)

			records := sink.Records()
			require.Len(t, records, 1)
			assert.Equal(t, report.Record, records[0])
			assert.Equal(t, tt.n, records[0].Replicas)
			assert.Equal(t, tt.f, records[0].Faults)
			assert.Equal(t, tt.m, records[0].Operations)
			assert.NotEmpty(t, records[0].RunID)
			assert.GreaterOrEqual(t, records[0].ElapsedMillis, int64(0))

			ops := rec.Operations()
			assert.Len(t, ops, 2*tt.m*live)
			assert.True(t, history.Check(ops, 0).Linearizable)
		})
	}
}

func TestRun_WritesOperationLog(t *testing.T) {
	var buf bytes.Buffer
	_, err := Run(context.Background(), benchConfig(3, 0, 1), Options{Log: logger.New(&buf)})
	require.NoError(t, err)

	ops, err := history.ParseLog(&buf)
	require.NoError(t, err)
	require.Len(t, ops, 6)

	// p_i writes i
	puts := make(map[string]int)
	for _, op := range ops {
		if op.Kind == history.Put {
			puts[op.Node] = op.Value
		}
	}
	assert.Equal(t, map[string]int{"p0": 0, "p1": 1, "p2": 2}, puts)
	assert.True(t, history.Check(ops, 0).Linearizable)
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := Run(context.Background(), benchConfig(3, 3, 1), Options{})
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestRun_NoMajorityWaitsForContext(t *testing.T) {
	sink := &results.MemorySink{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	report, err := Run(ctx, benchConfig(2, 1, 1), Options{Sink: sink})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NotNil(t, report)
	assert.Empty(t, sink.Records())
	for _, snap := range report.Nodes {
		assert.Zero(t, snap.Completed)
	}
}

func TestRun_SeedSelectsCrashedReplicas(t *testing.T) {
	cfg := benchConfig(5, 2, 1)
	cfg.Seed = 99

	a, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	b, err := Run(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, a.Crashed, b.Crashed)
	assert.NotEqual(t, a.Record.RunID, b.Record.RunID)
}

func TestPickCrashed(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	counts := make([]int, 5)
	const rounds = 5000
	for r := 0; r < rounds; r++ {
		crashed := pickCrashed(rng, 5, 2)
		require.Len(t, crashed, 2)
		assert.NotEqual(t, crashed[0], crashed[1])
		for _, i := range crashed {
			counts[i]++
		}
	}
	// each replica is picked with probability 2/5
	for i, c := range counts {
		assert.InDelta(t, rounds*2/5, c, rounds/20, "replica %d", i)
	}

	assert.Empty(t, pickCrashed(rng, 3, 0))
}

func TestStart_ConfiguresBeforeLaunching(t *testing.T) {
	out := &recordingSender{}
	peers := []msg.Address{"p0", "p1", "p2"}
	require.NoError(t, start(out, peers, 4, []int{1}))

	require.Len(t, out.sent, 9)
	for _, env := range out.sent[:6] {
		switch env.Body.(type) {
		case msg.PeerConfig, msg.OperationCountConfig:
		default:
			t.Fatalf("%s sent before every replica was configured", env)
		}
	}
	assert.Equal(t, msg.Envelope{From: msg.CoordinatorAddress, To: "p1", Body: msg.CrashSignal{}}, out.sent[6])
	assert.Equal(t, msg.LaunchSignal{}, out.sent[7].Body)
	assert.Equal(t, msg.LaunchSignal{}, out.sent[8].Body)
	assert.ElementsMatch(t, []msg.Address{"p0", "p2"}, []msg.Address{out.sent[7].To, out.sent[8].To})
}

type recordingSender struct {
	sent []msg.Envelope
}

func (r *recordingSender) Send(env msg.Envelope) error {
	r.sent = append(r.sent, env)
	return nil
}
