package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/core"
)

// ErrImportFormat reports input whose top level is not an array of objects.
var ErrImportFormat = errors.New("invalid file format: expected a JSON array of transactions")

// ImportError reports the first record of an import that could not be accepted.
type ImportError struct {
	Index int
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// DecodeTransactions parses a JSON array of transaction objects, coercing and
// validating every element. Records keep their ids; missing ids stay empty.
func DecodeTransactions(data []byte, now time.Time) ([]core.Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, ErrImportFormat
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}

	out := make([]core.Transaction, 0, len(raw))
	for i, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrImportFormat, i)
		}
		var t core.Transaction
		if err := json.Unmarshal(r, &t); err != nil {
			return nil, &ImportError{Index: i, Err: err}
		}
		t.Normalize(now)
		if err := t.Validate(); err != nil {
			return nil, &ImportError{Index: i, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}
