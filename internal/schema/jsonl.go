package schema

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadJSONL reads items from a JSONL file, one object per line.
// Reading stops at the first malformed or invalid line; the items decoded
// before it are returned together with the error.
func ReadJSONL(path string) (Collection, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	return DecodeJSONL(file)
}

// DecodeJSONL decodes items from r, one object per line.
func DecodeJSONL(r io.Reader) (Collection, error) {
	items := Collection{}
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var item QuestionItem
		if err := decoder.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return items, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		if err := item.Validate(); err != nil {
			return items, fmt.Errorf("invalid item at line %d: %w", lineNum, err)
		}
		items = append(items, item)
	}

	return items, nil
}

// WriteJSONL writes items to w, one object per line, in collection order.
func WriteJSONL(w io.Writer, items Collection) error {
	bw := bufio.NewWriter(w)
	encoder := json.NewEncoder(bw)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return fmt.Errorf("failed to write item %s: %w", item.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush JSONL output: %w", err)
	}
	return nil
}
