package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

// ExportFilename is the download name of GET /export.
const ExportFilename = "transactions.json"

// done answers a successful mutation: browsers go back to the page, API
// clients get the JSON response.
func done(w http.ResponseWriter, r *http.Request, resp *JSONResponseBuilder) {
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	resp.Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.store.Filter(filterFromQuery(r))
	NewJSONResponse().Data(txs).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := parseNewTransaction(p)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.store.Add(ctx, tx)
	if err != nil {
		if !isValidationError(err) {
			s.access.LogError(ctx, "Transaction create failed", err, log.OpCreate,
				log.NewFields().WithTransaction("", string(tx.Type), tx.Amount.Cents, tx.Category))
		}
		StoreErrorResponse(err).Write(w)
		return
	}

	logger.DebugContext(ctx, "Transaction created via HTTP", log.FieldTransactionID, created.ID)
	done(w, r, NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions/"+created.ID).
		Data(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch, err := parsePatch(p)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	tx, found, err := s.store.Update(ctx, id, patch)
	if !found {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		if !isValidationError(err) {
			s.access.LogError(ctx, "Transaction update failed", err, log.OpUpdate,
				log.NewFields().WithTransaction(id, "", 0, ""))
		}
		StoreErrorResponse(err).Write(w)
		return
	}
	done(w, r, NewJSONResponse().Data(tx))
}

// handleDeleteTransaction removes a transaction. Unknown ids are not an
// error: the result is the same as if it had been removed.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		s.access.LogError(ctx, "Transaction delete failed", err, log.OpDelete,
			log.NewFields().WithTransaction(id, "", 0, ""))
		StoreErrorResponse(err).Write(w)
		return
	}
	if !removed {
		log.FromContext(ctx).DebugContext(ctx, "Delete of unknown transaction ignored", log.FieldTransactionID, id)
	}
	done(w, r, NewJSONResponse().Status(http.StatusNoContent))
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Clear(ctx); err != nil {
		s.access.LogError(ctx, "Ledger clear failed", err, log.OpClear, nil)
		StoreErrorResponse(err).Write(w)
		return
	}
	done(w, r, NewJSONResponse().Status(http.StatusNoContent))
}

type formattedSummary struct {
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
	Net          string `json:"net"`
}

type summaryResponse struct {
	core.Summary
	Currency  string           `json:"currency"`
	Formatted formattedSummary `json:"formatted"`
}

func (s *Server) summaryOf(sum core.Summary) summaryResponse {
	return summaryResponse{
		Summary:  sum,
		Currency: s.currency,
		Formatted: formattedSummary{
			TotalIncome:  core.FormatAmount(sum.TotalIncome, s.currency),
			TotalExpense: core.FormatAmount(sum.TotalExpense, s.currency),
			Net:          core.FormatAmount(sum.Net, s.currency),
		},
	}
}

// handleSummary totals the whole ledger; filters never apply here.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.summaryOf(s.store.Summarize())).Write(w)
}

type breakdownRow struct {
	Category  string     `json:"category"`
	Amount    core.Money `json:"amount"`
	Formatted string     `json:"formatted"`
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	rows := []breakdownRow{}
	for _, c := range s.store.CategoryBreakdown() {
		rows = append(rows, breakdownRow{
			Category:  c.Name,
			Amount:    c.Amount,
			Formatted: core.FormatAmount(c.Amount, s.currency),
		})
	}
	NewJSONResponse().Data(rows).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.store.Categories()).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.store.Export(&buf); err != nil {
		s.access.LogError(r.Context(), "Export failed", err, log.OpExport, nil)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type importResponse struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// handleImport merges a JSON array sent either as the raw body or as the
// "file" field of a multipart upload.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "import file too large")
				return
			}
			writeError(w, http.StatusBadRequest, "missing import file")
			return
		}
		defer file.Close()
		src = file
	}

	n, err := s.store.ImportFrom(ctx, src)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "import file too large")
			return
		}
		log.FromContext(ctx).WarnContext(ctx, "Import rejected",
			log.FieldOperation, log.OpImport,
			log.FieldError, err)
		StoreErrorResponse(err).Write(w)
		return
	}

	done(w, r, NewJSONResponse().Data(importResponse{Imported: n, Total: s.store.Len()}))
}
