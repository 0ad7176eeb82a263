package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/storage/memory"
)

// newTestApp returns an App whose commands share one in-memory slot.
func newTestApp(t *testing.T) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	slot := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app := &App{
		Config: &config.Config{Currency: "INR", Backend: "memory", Port: "8081"},
		Logger: logger,
		Out:    out,
		Err:    errOut,
		In:     strings.NewReader(""),
		Open: func(ctx context.Context) (*backend.BackendResult, error) {
			store, err := ledger.Open(ctx, slot, ledger.Options{Logger: logger})
			if err != nil {
				return nil, err
			}
			return &backend.BackendResult{Store: store, Slot: slot, Cleanup: func() error { return nil }}, nil
		},
	}
	return app, out, errOut
}

func run(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cmd.Execute(context.Background(), fs)
}

func currentStore(t *testing.T, app *App) *ledger.Store {
	t.Helper()
	res, err := app.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return res.Store
}

func TestAddCommand(t *testing.T) {
	app, out, _ := newTestApp(t)

	if got := run(t, &addCmd{app: app}, "-t", "income", "-c", "Work", "-d", "2024-03-01", "1000", "Monthly", "salary"); got != subcommands.ExitSuccess {
		t.Fatalf("add exit = %v", got)
	}
	if !strings.Contains(out.String(), "Monthly salary") {
		t.Errorf("output = %q", out.String())
	}

	txs := currentStore(t, app).All()
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if tx.Type != core.Income || tx.Category != "Work" || tx.Amount.Cents != 100000 || tx.Date.String() != "2024-03-01" {
		t.Errorf("stored = %+v", tx)
	}
}

func TestAddCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want subcommands.ExitStatus
	}{
		{"missing description", []string{"12"}, subcommands.ExitUsageError},
		{"bad amount", []string{"abc", "Coffee"}, subcommands.ExitFailure},
		{"negative amount", []string{"--", "-5", "Coffee"}, subcommands.ExitFailure},
		{"bad type", []string{"-t", "gift", "5", "Coffee"}, subcommands.ExitFailure},
		{"bad date", []string{"-d", "2024-13-01", "5", "Coffee"}, subcommands.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApp(t)
			if got := run(t, &addCmd{app: app}, tt.args...); got != tt.want {
				t.Errorf("exit = %v, want %v", got, tt.want)
			}
			if n := currentStore(t, app).Len(); n != 0 {
				t.Errorf("failed add stored %d transactions", n)
			}
		})
	}
}

func TestEditCommand(t *testing.T) {
	app, _, errOut := newTestApp(t)
	run(t, &addCmd{app: app}, "-c", "Food", "3.50", "Coffee")
	id := currentStore(t, app).All()[0].ID

	if got := run(t, &editCmd{app: app}, "-a", "4.20", "-c", "", id); got != subcommands.ExitSuccess {
		t.Fatalf("edit exit = %v: %s", got, errOut.String())
	}
	tx, _ := currentStore(t, app).Get(id)
	if tx.Amount.Cents != 420 || tx.Category != "" || tx.Description != "Coffee" {
		t.Errorf("edited = %+v", tx)
	}

	if got := run(t, &editCmd{app: app}, id); got != subcommands.ExitFailure {
		t.Errorf("edit without flags exit = %v, want failure", got)
	}
	if got := run(t, &editCmd{app: app}, "-a", "1", "missing"); got != subcommands.ExitFailure {
		t.Errorf("edit of unknown id exit = %v, want failure", got)
	}
	if got := run(t, &editCmd{app: app}, "-desc", " ", id); got != subcommands.ExitFailure {
		t.Errorf("blank description exit = %v, want failure", got)
	}
}

func TestRmAndClearCommands(t *testing.T) {
	app, out, _ := newTestApp(t)
	run(t, &addCmd{app: app}, "1", "One")
	run(t, &addCmd{app: app}, "2", "Two")
	id := currentStore(t, app).All()[0].ID

	out.Reset()
	if got := run(t, &rmCmd{app: app}, id, "missing"); got != subcommands.ExitSuccess {
		t.Fatalf("rm exit = %v", got)
	}
	if !strings.Contains(out.String(), "Removed "+id) || !strings.Contains(out.String(), "No transaction with id missing") {
		t.Errorf("rm output = %q", out.String())
	}
	if n := currentStore(t, app).Len(); n != 1 {
		t.Fatalf("got %d transactions after rm, want 1", n)
	}

	if got := run(t, &clearCmd{app: app}); got != subcommands.ExitFailure {
		t.Errorf("clear without -yes exit = %v, want failure", got)
	}
	if got := run(t, &clearCmd{app: app}, "-yes"); got != subcommands.ExitSuccess {
		t.Fatalf("clear exit = %v", got)
	}
	if n := currentStore(t, app).Len(); n != 0 {
		t.Errorf("got %d transactions after clear", n)
	}
}

func TestListAndReports(t *testing.T) {
	app, out, _ := newTestApp(t)
	run(t, &addCmd{app: app}, "-t", "income", "-c", "Work", "1000", "Salary")
	run(t, &addCmd{app: app}, "-c", "Home", "400", "Rent")
	run(t, &addCmd{app: app}, "-c", "Food", "25", "Lunch")

	out.Reset()
	run(t, &listCmd{app: app}, "-t", "expense", "-json")
	var listed []core.Transaction
	if err := json.Unmarshal(out.Bytes(), &listed); err != nil {
		t.Fatalf("list -json output: %v", err)
	}
	if len(listed) != 2 || listed[0].Description != "Rent" {
		t.Errorf("listed = %+v", listed)
	}

	out.Reset()
	run(t, &listCmd{app: app}, "-s", "SAL")
	if !strings.Contains(out.String(), "Salary") || strings.Contains(out.String(), "Rent") {
		t.Errorf("list -s output = %q", out.String())
	}

	out.Reset()
	run(t, &summaryCmd{app: app})
	for _, want := range []string{"1,000.00", "425.00", "575.00"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary output missing %s:\n%s", want, out.String())
		}
	}

	out.Reset()
	run(t, &breakdownCmd{app: app})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Home") || !strings.HasPrefix(lines[1], "Food") {
		t.Errorf("breakdown output = %q", out.String())
	}

	out.Reset()
	run(t, &categoriesCmd{app: app})
	if got := strings.Fields(out.String()); strings.Join(got, ",") != "Work,Home,Food" {
		t.Errorf("categories = %v", got)
	}
}

func TestExportImportCommands(t *testing.T) {
	app, out, _ := newTestApp(t)
	run(t, &addCmd{app: app}, "-c", "Food", "3.50", "Coffee")

	path := filepath.Join(t.TempDir(), "backup.json")
	if got := run(t, &exportCmd{app: app}, "-o", path); got != subcommands.ExitSuccess {
		t.Fatalf("export exit = %v", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("[\n  {")) {
		t.Errorf("export is not indented JSON:\n%s", data)
	}

	out.Reset()
	if got := run(t, &importCmd{app: app}, path); got != subcommands.ExitSuccess {
		t.Fatalf("import exit = %v", got)
	}
	if !strings.Contains(out.String(), "Imported 1 transactions (2 total)") {
		t.Errorf("import output = %q", out.String())
	}
	txs := currentStore(t, app).All()
	if len(txs) != 2 || txs[0].ID == txs[1].ID {
		t.Errorf("re-imported records must get fresh ids: %+v", txs)
	}

	app.In = strings.NewReader(`[{"description":"ok","amount":1},{"description":"","amount":1}]`)
	if got := run(t, &importCmd{app: app}, "-"); got != subcommands.ExitFailure {
		t.Errorf("invalid import exit = %v, want failure", got)
	}
	if n := currentStore(t, app).Len(); n != 2 {
		t.Errorf("failed import changed the ledger: %d transactions", n)
	}
}

func TestExportToStdout(t *testing.T) {
	app, out, _ := newTestApp(t)
	if got := run(t, &exportCmd{app: app}, "-o", "-"); got != subcommands.ExitSuccess {
		t.Fatalf("export exit = %v", got)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("empty export = %q, want []", out.String())
	}
}

func TestReportCommandRaw(t *testing.T) {
	app, out, _ := newTestApp(t)
	run(t, &addCmd{app: app}, "-t", "income", "-c", "Work", "1000", "Salary")
	run(t, &addCmd{app: app}, "-c", "Home", "400", "Rent | flat")

	out.Reset()
	if got := run(t, &reportCmd{app: app}, "-raw"); got != subcommands.ExitSuccess {
		t.Fatalf("report exit = %v", got)
	}
	md := out.String()
	for _, want := range []string{"# Ledger", "| **Balance** | **₹600.00** |", "| Home | ₹400.00 |", `Rent \| flat`, "## Transactions (2)"} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestReportMarkdownEmpty(t *testing.T) {
	md := reportMarkdown(core.Summary{}, nil, nil, "INR")
	if !strings.Contains(md, "No expenses.") || !strings.Contains(md, "No transactions.") {
		t.Errorf("empty report = %q", md)
	}
}
