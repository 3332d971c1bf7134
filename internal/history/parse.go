package history

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

var (
	invokeLine = regexp.MustCompile(`(p\d+): Invoke (write|read) start_ts=(\d+) seq=(\d+)`)
	putLine    = regexp.MustCompile(`(p\d+): Put value: (-?\d+) operation duration: \d+ns end_ts=(\d+) seq=(\d+)`)
	getLine    = regexp.MustCompile(`(p\d+): Get return value: (-?\d+) operation duration: \d+ns end_ts=(\d+) seq=(\d+)`)
)

type opKey struct {
	node string
	seq  int
}

// ParseLog reads an operation log and returns the completed operations.
// Invocations without a matching completion are dropped.
func ParseLog(r io.Reader) ([]Operation, error) {
	pending := make(map[opKey]Operation)
	var ops []Operation

	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()

		if m := invokeLine.FindStringSubmatch(line); m != nil {
			start, seq, err := parseInts(m[3], m[4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			kind := Put
			if m[2] == "read" {
				kind = Get
			}
			pending[opKey{m[1], int(seq)}] = Operation{Node: m[1], Seq: int(seq), Kind: kind, Start: start}
			continue
		}

		kind := Put
		m := putLine.FindStringSubmatch(line)
		if m == nil {
			kind = Get
			m = getLine.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		value, end, err := parseInts(m[2], m[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		seq, err := strconv.Atoi(m[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		key := opKey{m[1], seq}
		op, ok := pending[key]
		if !ok || op.Kind != kind {
			return nil, fmt.Errorf("line %d: %s completion of %s seq=%d without invocation", lineNo, kind, m[1], seq)
		}
		delete(pending, key)
		op.Value = int(value)
		op.End = end
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read operation log: %w", err)
	}
	return ops, nil
}

func parseInts(a, b string) (int64, int64, error) {
	x, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
