package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/ledger"
)

// DefaultExportFile is where export writes when no -o is given.
const DefaultExportFile = "transactions.json"

// App carries what every command needs: configuration, the ledger opener
// and the standard streams.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
	In     io.Reader
	Open   func(ctx context.Context) (*backend.BackendResult, error)
}

// NewApp returns an App that opens the backend described by cfg.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger,
		Out:    os.Stdout,
		Err:    os.Stderr,
		In:     os.Stdin,
		Open: func(ctx context.Context) (*backend.BackendResult, error) {
			bcfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return nil, err
			}
			return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
		},
	}
}

// Register adds the ledger subcommands to c.
func Register(c *subcommands.Commander, app *App) {
	c.Register(&addCmd{app: app}, "transactions")
	c.Register(&editCmd{app: app}, "transactions")
	c.Register(&rmCmd{app: app}, "transactions")
	c.Register(&clearCmd{app: app}, "transactions")
	c.Register(&listCmd{app: app}, "transactions")

	c.Register(&summaryCmd{app: app}, "reports")
	c.Register(&breakdownCmd{app: app}, "reports")
	c.Register(&categoriesCmd{app: app}, "reports")
	c.Register(&reportCmd{app: app}, "reports")

	c.Register(&exportCmd{app: app}, "data")
	c.Register(&importCmd{app: app}, "data")

	c.Register(&serveCmd{app: app}, "server")
}

func (a *App) currency() string {
	if a.Config == nil || a.Config.Currency == "" {
		return core.DefaultCurrency
	}
	return a.Config.Currency
}

func (a *App) fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(a.Err, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}

// withStore opens the ledger, runs fn and releases the backend.
func (a *App) withStore(ctx context.Context, fn func(*ledger.Store) error) subcommands.ExitStatus {
	res, err := a.Open(ctx)
	if err != nil {
		return a.fail("open ledger: %v", err)
	}
	defer func() {
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				a.Logger.Warn("Backend cleanup failed", "error", err)
			}
		}
	}()
	if err := fn(res.Store); err != nil {
		return a.fail("%v", err)
	}
	return subcommands.ExitSuccess
}

func (a *App) printTransactions(txs []core.Transaction) {
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, t.Type, t.Category, core.FormatSigned(t, a.currency()), t.Description)
	}
	w.Flush()
}

type addCmd struct {
	app      *App
	txType   string
	category string
	date     string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record an income or expense" }
func (*addCmd) Usage() string {
	return `ledger add [-t income|expense] [-c <category>] [-d <YYYY-MM-DD>] <amount> <description...>

  Records a transaction. The type defaults to expense and the date to today.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.txType, "t", string(core.Expense), "Transaction type: income or expense.")
	f.StringVar(&c.category, "c", "", "Category label.")
	f.StringVar(&c.date, "d", "", "Date (YYYY-MM-DD). Defaults to today.")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		fmt.Fprint(c.app.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	typ, err := core.ParseType(c.txType)
	if err != nil {
		return c.app.fail("%v: %q", err, c.txType)
	}
	amount, err := core.ParseAmount(f.Arg(0))
	if err != nil {
		return c.app.fail("%v: %q", err, f.Arg(0))
	}
	tx := core.Transaction{
		Type:        typ,
		Description: strings.Join(f.Args()[1:], " "),
		Category:    c.category,
		Amount:      amount,
	}
	if c.date != "" {
		if tx.Date, err = core.ParseDate(c.date); err != nil {
			return c.app.fail("%v", err)
		}
	}

	return c.app.withStore(ctx, func(s *ledger.Store) error {
		added, err := s.Add(ctx, tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "Added %s: %s %s\n", added.ID, core.FormatSigned(added, c.app.currency()), added.Description)
		return nil
	})
}

type editCmd struct {
	app         *App
	txType      string
	description string
	category    string
	amount      string
	date        string
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "change fields of a transaction" }
func (*editCmd) Usage() string {
	return `ledger edit [-t <type>] [-desc <text>] [-c <category>] [-a <amount>] [-d <date>] <id>

  Replaces only the fields given as flags.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.txType, "t", "", "New type: income or expense.")
	f.StringVar(&c.description, "desc", "", "New description.")
	f.StringVar(&c.category, "c", "", "New category. An empty value clears it.")
	f.StringVar(&c.amount, "a", "", "New amount.")
	f.StringVar(&c.date, "d", "", "New date (YYYY-MM-DD).")
}

func (c *editCmd) patch(f *flag.FlagSet) (ledger.Patch, error) {
	var p ledger.Patch
	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "t":
			var t core.TxType
			if t, err = core.ParseType(c.txType); err == nil {
				p.Type = &t
			}
		case "desc":
			d := c.description
			p.Description = &d
		case "c":
			cat := c.category
			p.Category = &cat
		case "a":
			var m core.Money
			if m, err = core.ParseAmount(c.amount); err == nil {
				p.Amount = &m
			}
		case "d":
			var d core.Date
			if d, err = core.ParseDate(c.date); err == nil {
				p.Date = &d
			}
		}
	})
	return p, err
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.app.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	p, err := c.patch(f)
	if err != nil {
		return c.app.fail("%v", err)
	}
	if p.IsEmpty() {
		return c.app.fail("nothing to change")
	}
	id := f.Arg(0)

	return c.app.withStore(ctx, func(s *ledger.Store) error {
		tx, found, err := s.Update(ctx, id, p)
		if !found {
			return fmt.Errorf("no transaction with id %q", id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "Updated %s: %s %s\n", tx.ID, core.FormatSigned(tx, c.app.currency()), tx.Description)
		return nil
	})
}

type rmCmd struct{ app *App }

func (*rmCmd) Name() string     { return "rm" }
func (*rmCmd) Synopsis() string { return "remove transactions by id" }
func (*rmCmd) Usage() string {
	return `ledger rm <id>...

  Removes each listed transaction. Unknown ids are reported and skipped.
`
}
func (*rmCmd) SetFlags(*flag.FlagSet) {}

func (c *rmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(c.app.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		for _, id := range f.Args() {
			removed, err := s.Remove(ctx, id)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(c.app.Out, "Removed %s\n", id)
			} else {
				fmt.Fprintf(c.app.Out, "No transaction with id %s\n", id)
			}
		}
		return nil
	})
}

type clearCmd struct {
	app *App
	yes bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "delete every transaction" }
func (*clearCmd) Usage() string {
	return `ledger clear -yes

  Empties the ledger. Export first if you want a backup.
`
}

func (c *clearCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm deleting all transactions.")
}

func (c *clearCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		return c.app.fail("refusing to clear the ledger without -yes")
	}
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		n := s.Len()
		if err := s.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "Cleared %d transactions\n", n)
		return nil
	})
}

type listCmd struct {
	app      *App
	search   string
	category string
	txType   string
	asJSON   bool
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list transactions, optionally filtered" }
func (*listCmd) Usage() string {
	return `ledger list [-s <text>] [-c <category>] [-t income|expense|all] [-json]

  Lists transactions in the order they were recorded.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.search, "s", "", "Case-insensitive text to look for in descriptions.")
	f.StringVar(&c.category, "c", ledger.All, "Category to show, or all.")
	f.StringVar(&c.txType, "t", ledger.All, "Type to show: income, expense or all.")
	f.BoolVar(&c.asJSON, "json", false, "Print JSON instead of a table.")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter := ledger.Filter{Search: c.search, Category: c.category, Type: strings.ToLower(c.txType)}
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		txs := s.Filter(filter)
		if c.asJSON {
			enc := json.NewEncoder(c.app.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(txs)
		}
		if len(txs) == 0 {
			fmt.Fprintln(c.app.Out, "No transactions.")
			return nil
		}
		c.app.printTransactions(txs)
		return nil
	})
}

type summaryCmd struct{ app *App }

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show total income, expenses and balance" }
func (*summaryCmd) Usage() string {
	return `ledger summary

  Totals the whole ledger.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		sum := s.Summarize()
		cur := c.app.currency()
		w := tabwriter.NewWriter(c.app.Out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "Income\t%s\t\n", core.FormatAmount(sum.TotalIncome, cur))
		fmt.Fprintf(w, "Expenses\t%s\t\n", core.FormatAmount(sum.TotalExpense, cur))
		fmt.Fprintf(w, "Balance\t%s\t\n", core.FormatAmount(sum.Net, cur))
		return w.Flush()
	})
}

type breakdownCmd struct{ app *App }

func (*breakdownCmd) Name() string     { return "breakdown" }
func (*breakdownCmd) Synopsis() string { return "show expenses per category" }
func (*breakdownCmd) Usage() string {
	return `ledger breakdown

  Sums expenses per category, in the order categories first appear.
`
}
func (*breakdownCmd) SetFlags(*flag.FlagSet) {}

func (c *breakdownCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		rows := s.CategoryBreakdown()
		if len(rows) == 0 {
			fmt.Fprintln(c.app.Out, "No expenses.")
			return nil
		}
		w := tabwriter.NewWriter(c.app.Out, 0, 4, 2, ' ', 0)
		for _, r := range rows {
			name := r.Name
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(w, "%s\t%s\n", name, core.FormatAmount(r.Amount, c.app.currency()))
		}
		return w.Flush()
	})
}

type categoriesCmd struct{ app *App }

func (*categoriesCmd) Name() string     { return "categories" }
func (*categoriesCmd) Synopsis() string { return "list the categories in use" }
func (*categoriesCmd) Usage() string {
	return `ledger categories
`
}
func (*categoriesCmd) SetFlags(*flag.FlagSet) {}

func (c *categoriesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		for _, name := range s.Categories() {
			fmt.Fprintln(c.app.Out, name)
		}
		return nil
	})
}

type exportCmd struct {
	app    *App
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write all transactions to a JSON file" }
func (*exportCmd) Usage() string {
	return `ledger export [-o <file>|-]

  Writes the ledger as a JSON array. Use -o - for standard output.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", DefaultExportFile, "Output file, or - for standard output.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		if c.output == "-" {
			return s.Export(c.app.Out)
		}
		var buf bytes.Buffer
		if err := s.Export(&buf); err != nil {
			return err
		}
		if err := os.WriteFile(c.output, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write %s: %w", c.output, err)
		}
		fmt.Fprintf(c.app.Out, "Exported %d transactions to %s\n", s.Len(), c.output)
		return nil
	})
}

type importCmd struct{ app *App }

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "merge transactions from a JSON file" }
func (*importCmd) Usage() string {
	return `ledger import <file>|-

  Appends every transaction of a JSON array to the ledger. Nothing is
  imported if any record is invalid.
`
}
func (*importCmd) SetFlags(*flag.FlagSet) {}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.app.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	src := c.app.In
	if name := f.Arg(0); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return c.app.fail("%v", err)
		}
		defer file.Close()
		src = file
	}
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		n, err := s.ImportFrom(ctx, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "Imported %d transactions (%d total)\n", n, s.Len())
		return nil
	})
}
