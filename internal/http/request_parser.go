package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// maxBodyBytes bounds request bodies, imports included.
const maxBodyBytes = 5 << 20

var errBodyNotObject = errors.New("request body must be a JSON object or form data")

// RequestBodyParser reads a transaction payload sent either as a JSON object
// or as form-encoded data.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the request body once and keeps it for parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON when it looks like an object, otherwise as
// form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	switch body[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
		}
		return p.err
	case '[':
		p.err = errBodyNotObject
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(body))
	return p.err
}

// Has reports whether key was sent at all, even with an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseNewTransaction builds a transaction from a create request. A missing
// type means expense and a missing date means today; the store fills both.
func parseNewTransaction(p *RequestBodyParser) (core.Transaction, error) {
	tx := core.Transaction{
		Type:        core.Expense,
		Description: p.Get("description"),
		Category:    p.Get("category"),
	}

	if v := p.Get("type"); v != "" {
		t, err := core.ParseType(v)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Type = t
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = amount

	if v := p.Get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Date = d
	}

	if strings.TrimSpace(tx.Description) == "" {
		return core.Transaction{}, core.ErrEmptyDescription
	}
	return tx, nil
}

// parsePatch collects the fields present in an update request.
func parsePatch(p *RequestBodyParser) (ledger.Patch, error) {
	var patch ledger.Patch

	if p.Has("type") {
		t, err := core.ParseType(p.Get("type"))
		if err != nil {
			return ledger.Patch{}, err
		}
		patch.Type = &t
	}
	if p.Has("description") {
		d := p.Get("description")
		patch.Description = &d
	}
	if p.Has("category") {
		c := p.Get("category")
		patch.Category = &c
	}
	if p.Has("amount") {
		m, err := core.ParseAmount(p.Get("amount"))
		if err != nil {
			return ledger.Patch{}, err
		}
		patch.Amount = &m
	}
	if v := p.Get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return ledger.Patch{}, err
		}
		patch.Date = &d
	}
	return patch, nil
}
