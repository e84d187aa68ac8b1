package sqlstore

// JSONL export and import of resource tables. Each line holds one record
// as a JSON object keyed by column name.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 4 << 20

// readJSONL reads JSONL records from r. Empty and malformed lines are
// skipped; skipped counts the malformed ones.
func readJSONL(r io.Reader) (records []json.RawMessage, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			skipped++
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning records: %w", err)
	}
	return records, skipped, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// exportRecords marshals every record of a table, oldest first.
func exportRecords(ctx context.Context, tbl types.Table) ([]json.RawMessage, error) {
	page, err := tbl.Fetch(ctx, types.Query{Sort: types.ColumnCreatedAt})
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(page.Records))
	for _, rec := range page.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", tbl.Resource().Name, rec.ID(), err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Export writes every record of the named resource to w as JSONL.
func (b *Backend) Export(ctx context.Context, name string, w io.Writer) (int, error) {
	tbl, err := b.Table(name)
	if err != nil {
		return 0, err
	}
	records, err := exportRecords(ctx, tbl)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		bw.Write(rec)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("writing records: %w", err)
	}
	return len(records), nil
}

// ExportFile writes every record of the named resource to path, replacing
// the file atomically.
func (b *Backend) ExportFile(ctx context.Context, name, path string) (int, error) {
	tbl, err := b.Table(name)
	if err != nil {
		return 0, err
	}
	records, err := exportRecords(ctx, tbl)
	if err != nil {
		return 0, err
	}
	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportResult summarises an Import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Import reads JSONL records from r into the named resource in a single
// transaction. Records whose id exists are updated, others are inserted
// with their id and timestamps preserved. Malformed lines are skipped;
// a record that fails validation aborts the import.
func (b *Backend) Import(ctx context.Context, name string, r io.Reader) (ImportResult, error) {
	var result ImportResult

	raw, skipped, err := readJSONL(r)
	if err != nil {
		return result, err
	}
	result.Skipped = skipped

	err = b.WithTx(ctx, func(tx types.Tables) error {
		tt, err := tx.Table(name)
		if err != nil {
			return err
		}
		t := tt.(*table)
		for i, line := range raw {
			var input map[string]any
			dec := json.NewDecoder(bytes.NewReader(line))
			dec.UseNumber()
			if err := dec.Decode(&input); err != nil {
				result.Skipped++
				continue
			}
			rec, err := t.importRecord(input)
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			created, err := t.upsert(ctx, t.tx, rec)
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

// importRecord coerces every column of a decoded JSON object, including
// hidden and read-only fields and the reserved columns.
func (t *table) importRecord(input map[string]any) (types.Record, error) {
	verr := &types.ValidationError{}
	rec := make(types.Record, len(input))
	for key, raw := range input {
		if !t.res.HasColumn(key) {
			verr.Add(key, "is not a field")
			continue
		}
		f, ok := t.res.Field(key)
		if !ok {
			f = types.Field{Name: key, Type: t.res.ColumnType(key)}
		}
		v, err := types.CoerceValue(f, raw)
		if err != nil {
			verr.Add(key, err.Error())
			continue
		}
		rec[key] = v
	}
	if !verr.Empty() {
		return nil, verr
	}
	return rec, nil
}

// upsert inserts rec or updates the existing row with the same id.
func (t *table) upsert(ctx context.Context, x sqlx.ExtContext, rec types.Record) (bool, error) {
	id := rec.ID()
	if id == "" {
		_, err := t.insert(ctx, x, rec)
		return err == nil, err
	}
	_, err := t.get(ctx, x, id)
	switch {
	case errors.Is(err, types.ErrNotFound):
		_, err := t.insert(ctx, x, rec)
		return err == nil, err
	case err != nil:
		return false, err
	}
	return false, t.update(ctx, x, id, rec)
}
