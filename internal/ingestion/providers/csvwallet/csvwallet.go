// Package csvwallet implements a direct importer.Importer for exchange CSV export
// directories, bypassing the provider manager entirely: Account.Identifier holds one
// or more comma-separated directory paths, each walked for *.csv files, one
// ImportBatch per file, with symlink-cycle detection during traversal.
package csvwallet

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
)

// OperationType is the single stream this importer produces; CSV exports carry no
// separate internal/token split, unlike a live blockchain API.
const OperationType = "csv"

// Importer walks the directories named in Account.Identifier and yields one ImportBatch
// per CSV file found.
type Importer struct{}

// New returns a csvwallet Importer. It takes no provider dependency: CSV ingestion never
// calls the provider manager.
func New() *Importer {
	return &Importer{}
}

// ImportStreaming implements importer.Importer.
func (i *Importer) ImportStreaming(ctx context.Context, params importer.Params) iter.Seq2[importer.ImportBatch, error] {
	return func(yield func(importer.ImportBatch, error) bool) {
		dirs := splitDirs(params.Account.Identifier)
		if len(dirs) == 0 {
			yield(importer.ImportBatch{}, fmt.Errorf("csvwallet: account %s has no CSV directories configured", params.Account.ID))
			return
		}

		files, err := collectCSVFiles(dirs)
		if err != nil {
			yield(importer.ImportBatch{}, err)
			return
		}

		resumeCursor, hasResumed := params.Account.CursorFor(OperationType)
		startIdx := 0
		if hasResumed && resumeCursor.Metadata.Custom != nil {
			if v, ok := resumeCursor.Metadata.Custom["fileIndex"]; ok {
				if f, ok := v.(float64); ok {
					startIdx = int(f)
				} else if n, ok := v.(int); ok {
					startIdx = n
				}
			}
		}

		for idx := startIdx; idx < len(files); idx++ {
			select {
			case <-ctx.Done():
				yield(importer.ImportBatch{}, ctx.Err())
				return
			default:
			}

			rows, err := readCSVFile(files[idx], params.Account.ID)
			if err != nil {
				yield(importer.ImportBatch{}, err)
				return
			}

			isComplete := idx == len(files)-1
			batch := importer.ImportBatch{
				RawTransactions: rows,
				OperationType:   OperationType,
				IsComplete:      isComplete,
				Cursor: domain.CursorState{
					Primary: domain.PrimaryCursor{Type: domain.CursorPageToken, Value: files[idx]},
					Metadata: domain.CursorMetadata{
						ProviderName: "csvwallet",
						Custom:       map[string]any{"fileIndex": idx + 1},
					},
				},
			}

			if !yield(batch, nil) {
				return
			}
		}

		if len(files) == 0 {
			yield(importer.ImportBatch{IsComplete: true, OperationType: OperationType}, nil)
		}
	}
}

func splitDirs(identifier string) []string {
	parts := strings.Split(identifier, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// collectCSVFiles walks each directory, tracking visited real paths to break symlink
// cycles, and returns the files in a deterministic order: directories in the order
// given, each directory's entries in name order as os.ReadDir returns them.
func collectCSVFiles(dirs []string) ([]string, error) {
	visited := make(map[string]struct{})
	var files []string

	for _, dir := range dirs {
		if err := walkDir(dir, visited, &files); err != nil {
			return nil, fmt.Errorf("csvwallet: failed to walk %s: %w", dir, err)
		}
	}
	return files, nil
}

func walkDir(dir string, visited map[string]struct{}, files *[]string) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if _, seen := visited[real]; seen {
		return nil
	}
	visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(full)
			if err == nil && info.IsDir() {
				if err := walkDir(full, visited, files); err != nil {
					return err
				}
				continue
			}
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			*files = append(*files, full)
		}
	}
	return nil
}

func readCSVFile(path, accountID string) ([]domain.RawTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("csvwallet: failed to read header of %s: %w", path, err)
	}
	columnOf := make(map[string]int, len(header))
	for i, h := range header {
		columnOf[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var rows []domain.RawTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvwallet: failed to read row in %s: %w", path, err)
		}

		entry := normalize.ExchangeLedgerEntry{
			ProviderID:     get(record, columnOf, "id"),
			Timestamp:      parseUnix(get(record, columnOf, "timestamp")),
			EntryType:      get(record, columnOf, "type"),
			AssetSymbol:    get(record, columnOf, "asset"),
			Amount:         get(record, columnOf, "amount"),
			FeeAssetSymbol: get(record, columnOf, "feeasset"),
			FeeAmount:      get(record, columnOf, "feeamount"),
			Status:         defaultString(get(record, columnOf, "status"), "success"),
			Address:        get(record, columnOf, "address"),
			RefID:          get(record, columnOf, "refid"),
		}
		if entry.ProviderID == "" {
			entry.ProviderID = uuid.NewString()
		}

		normalizedJSON, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		rawJSON, err := json.Marshal(recordToMap(header, record))
		if err != nil {
			return nil, err
		}

		rows = append(rows, domain.RawTransaction{
			ID:               uuid.NewString(),
			AccountID:        accountID,
			ExternalID:       entry.ProviderID,
			ProviderData:     rawJSON,
			NormalizedData:   normalizedJSON,
			ProcessingStatus: domain.ProcessingPending,
			StreamType:       entry.EntryType,
		})
	}
	return rows, nil
}

func get(record []string, columnOf map[string]int, key string) string {
	idx, ok := columnOf[key]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func recordToMap(header, record []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(record) {
			m[h] = record[i]
		}
	}
	return m
}

func parseUnix(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
