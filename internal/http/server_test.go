package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/storage/memory"
)

type brokenSlot struct{ *memory.Slot }

func (brokenSlot) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *ledger.Store) {
	t.Helper()
	store := ledger.New(memory.New(), ledger.Options{Logger: quietLogger()})
	srv := NewServer(":0", store, Options{Currency: "INR", Logger: quietLogger()})
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv, store
}

func do(t *testing.T, srv *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func seed(t *testing.T, store *ledger.Store, typ core.TxType, desc, cat string, cents int64) core.Transaction {
	t.Helper()
	tx, err := store.Add(context.Background(), core.Transaction{
		Type: typ, Description: desc, Category: cat, Amount: core.Money{Cents: cents},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return tx
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, srv, http.MethodGet, path, "", ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	srv.ready = func(context.Context) error { return errors.New("slot unreachable") }
	if rr := do(t, srv, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not ready, got %d", rr.Code)
	}
}

func TestCreateTransaction(t *testing.T) {
	srv, store := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/transactions", "application/json",
		`{"type":"income","description":"  Salary ","category":"Work","amount":50000.005,"date":"2024-03-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[core.Transaction](t, rr)
	if created.ID == "" {
		t.Fatal("created transaction has no id")
	}
	if created.Description != "Salary" || created.Amount.Cents != 5000001 || created.Type != core.Income {
		t.Errorf("created = %+v", created)
	}
	if loc := rr.Header().Get("Location"); loc != "/transactions/"+created.ID {
		t.Errorf("Location = %q", loc)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d transactions, want 1", store.Len())
	}
}

func TestCreateTransactionDefaults(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/transactions", "application/x-www-form-urlencoded",
		"description=Coffee&amount=3,5")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[core.Transaction](t, rr)
	if created.Type != core.Expense {
		t.Errorf("type = %q, want expense", created.Type)
	}
	if created.Amount.Cents != 350 {
		t.Errorf("amount = %d, want 350", created.Amount.Cents)
	}
	if created.Date.IsZero() {
		t.Error("date should default to today")
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv, store := newTestServer(t)
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"invalid amount", "application/x-www-form-urlencoded", "description=x&amount=abc", http.StatusUnprocessableEntity},
		{"zero amount", "application/json", `{"description":"x","amount":0}`, http.StatusUnprocessableEntity},
		{"negative amount", "application/json", `{"description":"x","amount":-5}`, http.StatusUnprocessableEntity},
		{"missing description", "application/x-www-form-urlencoded", "description=&amount=1.23", http.StatusUnprocessableEntity},
		{"unknown type", "application/json", `{"type":"gift","description":"x","amount":1}`, http.StatusUnprocessableEntity},
		{"bad date", "application/json", `{"description":"x","amount":1,"date":"01/02/2024"}`, http.StatusUnprocessableEntity},
		{"long description", "application/json", `{"description":"` + strings.Repeat("a", 201) + `","amount":1}`, http.StatusUnprocessableEntity},
		{"malformed json", "application/json", `{"description":`, http.StatusBadRequest},
		{"array body", "application/json", `[{"description":"x"}]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/transactions", tt.contentType, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), `"error"`) {
				t.Errorf("expected JSON error body, got %s", rr.Body.String())
			}
		})
	}
	if store.Len() != 0 {
		t.Errorf("rejected requests stored %d transactions", store.Len())
	}
}

func TestCreateTransactionFromBrowserRedirects(t *testing.T) {
	srv, store := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("type=expense&description=Rent&category=Home&amount=400"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d transactions, want 1", store.Len())
	}
}

func TestCreateTransactionPersistFailure(t *testing.T) {
	store := ledger.New(brokenSlot{memory.New()}, ledger.Options{Logger: quietLogger()})
	srv := NewServer(":0", store, Options{Logger: quietLogger()})
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/transactions", "application/json", `{"description":"x","amount":1}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if store.Len() != 0 {
		t.Error("failed save must not change the ledger")
	}
}

func TestListTransactionsFilters(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Income, "Salary", "Work", 100000)
	seed(t, store, core.Expense, "Groceries", "Food", 4000)
	seed(t, store, core.Expense, "Dinner out", "Food", 2500)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Salary", "Groceries", "Dinner out"}},
		{"?type=expense", []string{"Groceries", "Dinner out"}},
		{"?type=all&category=all", []string{"Salary", "Groceries", "Dinner out"}},
		{"?category=Food&search=DIN", []string{"Dinner out"}},
		{"?search=nothing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/transactions"+tt.query, "", "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			got := decode[[]core.Transaction](t, rr)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.want))
			}
			for i, tx := range got {
				if tx.Description != tt.want[i] {
					t.Errorf("[%d] = %q, want %q", i, tx.Description, tt.want[i])
				}
			}
		})
	}
}

func TestGetTransaction(t *testing.T) {
	srv, store := newTestServer(t)
	tx := seed(t, store, core.Expense, "Coffee", "Food", 350)

	rr := do(t, srv, http.MethodGet, "/transactions/"+tx.ID, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[core.Transaction](t, rr); got.ID != tx.ID {
		t.Errorf("got id %q, want %q", got.ID, tx.ID)
	}

	if rr := do(t, srv, http.MethodGet, "/transactions/missing", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestUpdateTransaction(t *testing.T) {
	srv, store := newTestServer(t)
	tx := seed(t, store, core.Expense, "Coffee", "Food", 350)

	rr := do(t, srv, http.MethodPatch, "/transactions/"+tx.ID, "application/json", `{"amount":"4.20","category":"Cafe"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[core.Transaction](t, rr)
	if got.Amount.Cents != 420 || got.Category != "Cafe" || got.Description != "Coffee" {
		t.Errorf("updated = %+v", got)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"empty patch", "/transactions/" + tx.ID, `{}`, http.StatusBadRequest},
		{"unknown id", "/transactions/missing", `{"amount":1}`, http.StatusNotFound},
		{"negative amount", "/transactions/" + tx.ID, `{"amount":-5}`, http.StatusUnprocessableEntity},
		{"blank description", "/transactions/" + tx.ID, `{"description":"  "}`, http.StatusUnprocessableEntity},
		{"unknown type", "/transactions/" + tx.ID, `{"type":"refund"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPatch, tt.path, "application/json", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}

	if cur, _ := store.Get(tx.ID); cur.Amount.Cents != 420 {
		t.Errorf("rejected patches changed the transaction: %+v", cur)
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv, store := newTestServer(t)
	tx := seed(t, store, core.Expense, "Coffee", "Food", 350)
	seed(t, store, core.Expense, "Tea", "Food", 200)

	if rr := do(t, srv, http.MethodDelete, "/transactions/"+tx.ID, "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d transactions, want 1", store.Len())
	}

	// Unknown ids are a no-op, not an error.
	if rr := do(t, srv, http.MethodDelete, "/transactions/missing", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unknown id, got %d", rr.Code)
	}
	if store.Len() != 1 {
		t.Errorf("deleting an unknown id changed the ledger")
	}
}

func TestClearTransactions(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Expense, "Coffee", "Food", 350)
	seed(t, store, core.Income, "Salary", "Work", 100000)

	if rr := do(t, srv, http.MethodDelete, "/transactions", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d transactions after clear", store.Len())
	}
}

func TestReports(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Income, "Salary", "Work", 100000)
	seed(t, store, core.Expense, "Rent", "Home", 30000)
	seed(t, store, core.Expense, "Groceries", "Food", 6000)
	seed(t, store, core.Expense, "Repairs", "Home", 4000)

	t.Run("summary", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/summary?type=income", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		got := decode[summaryResponse](t, rr)
		if got.TotalIncome.Cents != 100000 || got.TotalExpense.Cents != 40000 || got.Net.Cents != 60000 {
			t.Errorf("summary = %+v", got.Summary)
		}
		if got.Currency != "INR" || !strings.Contains(got.Formatted.Net, "600.00") {
			t.Errorf("formatted = %+v (%s)", got.Formatted, got.Currency)
		}
	})

	t.Run("breakdown", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/breakdown", "", "")
		got := decode[[]breakdownRow](t, rr)
		if len(got) != 2 {
			t.Fatalf("got %d rows, want 2", len(got))
		}
		if got[0].Category != "Home" || got[0].Amount.Cents != 34000 {
			t.Errorf("row 0 = %+v", got[0])
		}
		if got[1].Category != "Food" || got[1].Amount.Cents != 6000 {
			t.Errorf("row 1 = %+v", got[1])
		}
	})

	t.Run("categories", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/categories", "", "")
		got := decode[[]string](t, rr)
		want := []string{"Work", "Home", "Food"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("categories = %v, want %v", got, want)
		}
	})

	t.Run("empty breakdown is an empty array", func(t *testing.T) {
		empty, _ := newTestServer(t)
		rr := do(t, empty, http.MethodGet, "/breakdown", "", "")
		if strings.TrimSpace(rr.Body.String()) != "[]" {
			t.Errorf("body = %s, want []", rr.Body.String())
		}
	})
}

func TestExport(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Expense, "Coffee", "Food", 350)

	rr := do(t, srv, http.MethodGet, "/export", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="transactions.json"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rr.Body.String(), "\n  {") {
		t.Errorf("export should be indented with two spaces:\n%s", rr.Body.String())
	}
	got := decode[[]core.Transaction](t, rr)
	if len(got) != 1 || got[0].Description != "Coffee" {
		t.Errorf("exported = %+v", got)
	}
}

func TestImport(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      int
		wantCount int
	}{
		{"merges records", `[{"id":"a","type":"income","description":"Bonus","amount":"12,345","date":"2024-01-05"},{"description":"Snack","amount":2}]`, http.StatusOK, 2},
		{"not an array", `{"description":"x"}`, http.StatusBadRequest, 0},
		{"not json", `hello`, http.StatusBadRequest, 0},
		{"array of scalars", `[1,2]`, http.StatusBadRequest, 0},
		{"invalid record rejects all", `[{"description":"ok","amount":1},{"description":"","amount":1}]`, http.StatusUnprocessableEntity, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t)
			rr := do(t, srv, http.MethodPost, "/import", "application/json", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			if store.Len() != tt.wantCount {
				t.Errorf("store has %d transactions, want %d", store.Len(), tt.wantCount)
			}
		})
	}
}

func TestImportReportsRecordIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/import", "application/json",
		`[{"description":"ok","amount":1},{"description":"bad","amount":0}]`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	got := decode[errorBody](t, rr)
	if got.Index == nil || *got.Index != 1 {
		t.Errorf("index = %v, want 1", got.Index)
	}
}

func TestImportMultipart(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Expense, "Existing", "Food", 100)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "transactions.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`[{"type":"expense","description":"Taxi","category":"Travel","amount":15}]`))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[importResponse](t, rr)
	if got.Imported != 1 || got.Total != 2 {
		t.Errorf("response = %+v", got)
	}
}

func TestImportMultipartTooLarge(t *testing.T) {
	srv, store := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "transactions.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`[{"description":"`))
	_, _ = fw.Write(bytes.Repeat([]byte("x"), maxBodyBytes))
	_, _ = fw.Write([]byte(`","amount":1}]`))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
	if store.Len() != 0 {
		t.Errorf("store has %d transactions, want 0", store.Len())
	}
}

func TestImportRejectsHugeAmounts(t *testing.T) {
	srv, store := newTestServer(t)
	for _, body := range []string{
		`[{"description":"big","amount":200000000000000000}]`,
		`[{"description":"big","amount":"1e20000000"}]`,
	} {
		rr := do(t, srv, http.MethodPost, "/import", "application/json", body)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", body, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/transactions", "application/json", `{"description":"big","amount":"1e20000000"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("create: expected 422, got %d", rr.Code)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d transactions, want 0", store.Len())
	}
}

func TestIndexPage(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Income, "Salary", "Work", 100000)
	seed(t, store, core.Expense, "Rent <flat>", "Home", 40000)

	rr := do(t, srv, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Add transaction", "Salary", "Rent &lt;flat&gt;", "600.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}

	rr = do(t, srv, http.MethodGet, "/?type=income", "", "")
	if strings.Contains(rr.Body.String(), "Rent &lt;flat&gt;</td>") {
		t.Error("filtered page should not list expenses")
	}
}

func TestIndexPageUncategorizedFilter(t *testing.T) {
	srv, store := newTestServer(t)
	seed(t, store, core.Expense, "Rent", "Home", 40000)
	seed(t, store, core.Expense, "Stray coffee", "", 300)

	rr := do(t, srv, http.MethodGet, "/?category=", "", "")
	body := rr.Body.String()
	if !strings.Contains(body, "Stray coffee") || strings.Contains(body, "<td>Rent</td>") {
		t.Errorf("empty category filter should list only uncategorized rows:\n%s", body)
	}
	if !strings.Contains(body, `<option value="" selected>(none)</option>`) {
		t.Error("(none) option should stay selected")
	}

	rr = do(t, srv, http.MethodGet, "/", "", "")
	if !strings.Contains(rr.Body.String(), "<td>Rent</td>") {
		t.Error("missing category parameter should list everything")
	}
}

func TestEditFromBrowserRedirects(t *testing.T) {
	srv, store := newTestServer(t)
	tx := seed(t, store, core.Expense, "Coffee", "Food", 350)

	req := httptest.NewRequest(http.MethodPost, "/transactions/"+tx.ID+"/edit",
		strings.NewReader("type=income&description=Refund&category=&amount=4,20&date=2024-02-01"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected 303 to /, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	got, _ := store.Get(tx.ID)
	if got.Type != core.Income || got.Description != "Refund" || got.Category != "" || got.Amount.Cents != 420 || got.Date.String() != "2024-02-01" {
		t.Errorf("edited = %+v", got)
	}

	page := do(t, srv, http.MethodGet, "/", "", "")
	if !strings.Contains(page.Body.String(), `action="/transactions/`+tx.ID+`/edit"`) {
		t.Error("index page should offer an edit form per row")
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	srv, _ := newTestServer(t)
	if rr := do(t, srv, http.MethodGet, "/import", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /import: expected 405, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/nope", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("GET /nope: expected 404, got %d", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/summary", "", "")
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
	if id := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("X-Request-ID = %q", id)
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	srv, _ := newTestServer(t)
	var last int
	for i := 0; i <= defaultRateLimit; i++ {
		last = do(t, srv, http.MethodDelete, "/transactions/missing", "", "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d mutations, got %d", defaultRateLimit, last)
	}
	if srv.metrics.rateLimitHits != 1 {
		t.Errorf("rateLimitHits = %d, want 1", srv.metrics.rateLimitHits)
	}
	// Reads are never limited.
	if rr := do(t, srv, http.MethodGet, "/transactions", "", ""); rr.Code != http.StatusOK {
		t.Errorf("GET after limit: expected 200, got %d", rr.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &rateLimiter{limit: 2, window: time.Minute, now: func() time.Time { return now }, clients: map[string]*clientInfo{}}

	if !rl.allow("a", nil) || !rl.allow("a", nil) {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a", nil) {
		t.Fatal("third request in the window should be rejected")
	}
	if !rl.allow("b", nil) {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(time.Minute)
	if !rl.allow("a", nil) {
		t.Fatal("a new window should reset the budget")
	}

	now = now.Add(rateLimitStaleAge + time.Second)
	if removed := rl.cleanupStaleEntries(); removed != 2 {
		t.Errorf("cleanupStaleEntries() = %d, want 2", removed)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.7:5555", "", "", "203.0.113.7"},
		{"untrusted peer ignores forwarded", "203.0.113.7:5555", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy forwarded for", "10.0.0.2:80", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:80", "", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy bad header", "127.0.0.1:80", "not-an-ip", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		agent  string
		want   bool
	}{
		{"normal", "/transactions?search=coffee", "Mozilla/5.0", false},
		{"path traversal", "/static/../../etc/passwd", "Mozilla/5.0", true},
		{"dotenv probe", "/.env", "", true},
		{"scanner agent", "/", "sqlmap/1.7", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &securityMetrics{}
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("User-Agent", tt.agent)
			if got := detectSuspiciousRequest(req, m); got != tt.want {
				t.Errorf("detectSuspiciousRequest() = %v, want %v", got, tt.want)
			}
			if tt.want && m.suspiciousRequests != 1 {
				t.Errorf("suspiciousRequests = %d, want 1", m.suspiciousRequests)
			}
		})
	}
}

func TestBreakdownBars(t *testing.T) {
	bars, maxName := breakdownBars([]core.CategoryAmount{
		{Name: "Home", Amount: core.Money{Cents: 40000}},
		{Name: "Food", Amount: core.Money{Cents: 10000}},
		{Name: "Misc", Amount: core.Money{Cents: 100}},
	}, "INR")

	if maxName != "Home" {
		t.Errorf("maxName = %q, want Home", maxName)
	}
	want := []int{100, 25, 2}
	for i, b := range bars {
		if b.Width != want[i] {
			t.Errorf("%s width = %d, want %d", b.Name, b.Width, want[i])
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\tc\n "); got != "ab\tc" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}
