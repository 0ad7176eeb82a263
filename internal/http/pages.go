package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

type pageRow struct {
	ID          string
	Date        string
	Type        string
	Description string
	Category    string
	Amount      string
	AmountValue string
	Income      bool
}

type barRow struct {
	Name, Amount string
	Width        int
}

type indexData struct {
	Today      string
	Filter     ledger.Filter
	Categories []string
	Rows       []pageRow
	Total      int
	Summary    formattedSummary
	Negative   bool
	Bars       []barRow
	MaxName    string
}

// breakdownBars scales each category against the largest one, as a rounded
// percentage with a floor of 2 so small values stay visible.
func breakdownBars(cats []core.CategoryAmount, currency string) ([]barRow, string) {
	var maxCents int64
	var maxName string
	for _, c := range cats {
		if c.Amount.Cents > maxCents {
			maxCents = c.Amount.Cents
			maxName = c.Name
		}
	}
	bars := make([]barRow, 0, len(cats))
	for _, c := range cats {
		width := 0
		if maxCents > 0 && c.Amount.Cents > 0 {
			width = int((c.Amount.Cents*100 + maxCents/2) / maxCents)
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		bars = append(bars, barRow{Name: c.Name, Amount: core.FormatAmount(c.Amount, currency), Width: width})
	}
	return bars, maxName
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.templates == nil {
		log.FromContext(ctx).ErrorContext(ctx, "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	f := filterFromQuery(r)
	// The "(none)" option submits an empty category; a missing parameter
	// means no category filter.
	if f.Category == "" {
		f.Uncategorized = r.URL.Query().Has("category")
		f.Category = ledger.All
	}
	if f.Type == "" {
		f.Type = ledger.All
	}

	sum := s.store.Summarize()
	data := indexData{
		Today:      core.Today(s.now()).String(),
		Filter:     f,
		Categories: s.store.Categories(),
		Total:      s.store.Len(),
		Summary:    s.summaryOf(sum).Formatted,
		Negative:   sum.Net.Cents < 0,
	}
	for _, t := range s.store.Filter(f) {
		data.Rows = append(data.Rows, pageRow{
			ID:          t.ID,
			Date:        t.Date.String(),
			Type:        t.Type.String(),
			Description: t.Description,
			Category:    t.Category,
			Amount:      core.FormatSigned(t, s.currency),
			AmountValue: t.Amount.String(),
			Income:      t.IsIncome(),
		})
	}
	data.Bars, data.MaxName = breakdownBars(s.store.CategoryBreakdown(), s.currency)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Index template execution failed", log.FieldError, err, "template", "index.html")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}
