package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var csvHeader = []string{"timestamp", "mac", "rx_bytes", "tx_bytes"}

// CSVStore is the flat-file sink. Rows are appended with a single write so a
// reader never sees half a row.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (c *CSVStore) Name() string { return "csv" }

func (c *CSVStore) Path() string { return c.path }

func (c *CSVStore) Append(ctx context.Context, s Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if size == 0 {
		_ = w.Write(csvHeader)
	}
	_ = w.Write([]string{FormatTimestamp(s.Timestamp), s.MAC, formatCounter(s.RxBytes), formatCounter(s.TxBytes)})
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		// drop whatever part of the row made it to disk
		if terr := f.Truncate(size); terr != nil {
			return errors.Join(err, terr)
		}
		return err
	}
	return f.Sync()
}

// Samples reads rows for mac in file order. A missing file is an empty
// sequence. Rows with an unparseable timestamp fail the read.
func (c *CSVStore) Samples(ctx context.Context, mac string) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Sample{}, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return []Sample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, name := range csvHeader {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("csv %s: missing column %q", c.path, name)
		}
	}

	target := NormalizeMAC(mac)
	out := []Sample{}
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", c.path, line, err)
		}
		field := func(name string) string {
			if i := idx[name]; i < len(rec) {
				return rec[i]
			}
			return ""
		}
		rowMAC := NormalizeMAC(field("mac"))
		if target != "" && rowMAC != target {
			continue
		}
		ts, err := ParseTimestamp(field("timestamp"))
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", c.path, line, err)
		}
		out = append(out, Sample{
			Timestamp: ts,
			MAC:       rowMAC,
			RxBytes:   parseStoredCounter(field("rx_bytes")),
			TxBytes:   parseStoredCounter(field("tx_bytes")),
		})
	}
	return out, nil
}
