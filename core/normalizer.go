package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	MACKeys = []string{"mac", "mac-address", "mac_address", "macAddress", "hwaddr", "hardware_address", "address"}
	// Counter synonyms are listed in priority order; within one object the
	// earliest listed key wins.
	RxKeys = []string{"rx_bytes", "rx-byte", "rxBytes", "rx_octets", "rx_octet", "rx_octet_count", "rx_bytes_total", "fp-rx-byte", "rx"}
	TxKeys = []string{"tx_bytes", "tx-byte", "txBytes", "tx_octets", "tx_octet", "tx_octet_count", "tx_bytes_total", "fp-tx-byte", "tx"}
)

// Reading is the counter pair resolved for one interface.
type Reading struct {
	MAC     string
	RxBytes *int64
	TxBytes *int64
}

// ResolveCounters finds the record for mac anywhere in root and extracts its
// byte counters. It returns ErrNotFound when no record carries that address.
func ResolveCounters(root *Node, mac string) (Reading, error) {
	target := NormalizeMAC(mac)
	record := FindRecord(root, target)
	if record == nil {
		return Reading{}, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	rx, tx := ExtractCounters(record)
	return Reading{MAC: target, RxBytes: rx, TxBytes: tx}, nil
}

// FindRecord walks n depth-first in document order and returns the first
// object holding a hardware address key whose value normalizes to target.
func FindRecord(n *Node, target string) *Node {
	return findRecord(n, NormalizeMAC(target))
}

func findRecord(n *Node, target string) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		for _, f := range n.Fields {
			if !containsKey(MACKeys, f.Key) {
				continue
			}
			if v, ok := f.Value.Text(); ok && NormalizeMAC(v) == target {
				return n
			}
		}
		for _, f := range n.Fields {
			if rec := findRecord(f.Value, target); rec != nil {
				return rec
			}
		}
	case KindArray:
		for _, item := range n.Items {
			if rec := findRecord(item, target); rec != nil {
				return rec
			}
		}
	}
	return nil
}

// FindFirst returns the value of the first non-null key from keys, checking
// each object before descending into its children.
func FindFirst(n *Node, keys []string) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		for _, k := range keys {
			if v := n.Get(k); v != nil && v.Kind != KindNull {
				return v
			}
		}
		for _, f := range n.Fields {
			if v := FindFirst(f.Value, keys); v != nil {
				return v
			}
		}
	case KindArray:
		for _, item := range n.Items {
			if v := FindFirst(item, keys); v != nil {
				return v
			}
		}
	}
	return nil
}

func ExtractCounters(record *Node) (rx, tx *int64) {
	return parseCounter(FindFirst(record, RxKeys)), parseCounter(FindFirst(record, TxKeys))
}

// parseCounter yields nil for anything that is not a non-negative integer.
// JSON numbers with a fraction are truncated; strings must hold an integer.
func parseCounter(n *Node) *int64 {
	if n == nil || n.Kind != KindScalar {
		return nil
	}

	switch v := n.Scalar.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return nonNegative(i)
		}
		f, err := v.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 {
			return nil
		}
		return nonNegative(int64(f))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return nonNegative(i)
	}
	return nil
}

func nonNegative(v int64) *int64 {
	if v < 0 {
		return nil
	}
	return &v
}

func containsKey(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}
