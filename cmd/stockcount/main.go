package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stockcount/internal"
	"stockcount/internal/api"
	"stockcount/internal/app"
	"stockcount/internal/config"
	"stockcount/internal/pipeline"
	"stockcount/internal/stock"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := app.NewLogger(cfg, "stockcount")
	defer log.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	must(err)
	defer a.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "catalog:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "catalog file, stdin when empty or -")
		_ = fs.Parse(args)
		content, source, err := readCatalog(*file)
		must(err)
		summary, err := a.Importer.ImportCatalogFrom(ctx, source, content)
		mustImport(summary, err)
		fmt.Println(summary.Message())
		printSummary(summary)
	case "catalog:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		force := fs.Bool("force", false, "import even when the feed is unchanged")
		_ = fs.Parse(args)
		sync, err := a.Sync()
		must(err)
		res, err := sync.Sync(ctx, *force)
		mustImport(res.Summary, err)
		if res.Skipped {
			fmt.Printf("feed unchanged hash=%s\n", res.Hash)
			return
		}
		fmt.Println(res.Summary.Message())
		printSummary(res.Summary)
	case "catalog:search":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		q := fs.String("q", "", "search text (code or description)")
		limit := fs.Int("limit", cfg.SearchResultLimit, "max results")
		_ = fs.Parse(args)
		items, err := a.Catalog.Search(ctx, *q, *limit)
		must(err)
		printProducts(items)
	case "catalog:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		page := fs.Int("page", 1, "1-based page")
		_ = fs.Parse(args)
		res, err := a.Catalog.Page(ctx, *page)
		must(err)
		printProducts(res.Items)
		fmt.Printf("page %d/%d total=%d\n", res.Page, res.TotalPages, res.Total)
	case "catalog:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		code := fs.String("code", "", "barcode or internal code")
		desc := fs.String("desc", "", "description")
		_ = fs.Parse(args)
		p, err := a.Catalog.Add(ctx, internal.ProductInput{Code: *code, Description: *desc})
		must(err)
		fmt.Printf("added id=%s code=%s\n", p.ID, p.Code)
	case "catalog:remove":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "product id")
		_ = fs.Parse(args)
		must(a.Catalog.Remove(ctx, *id))
		fmt.Printf("removed id=%s\n", *id)
	case "catalog:clear":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		yes := fs.Bool("yes", false, "confirm deleting every product")
		_ = fs.Parse(args)
		if !*yes {
			must(errors.New("--yes is required"))
		}
		n, err := a.Catalog.ClearAll(ctx)
		must(err)
		fmt.Printf("deleted %d products\n", n)
	case "catalog:runs":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(args)
		runs, err := a.Runs.ListImportRuns(ctx, *limit)
		must(err)
		for _, r := range runs {
			fmt.Printf("%s %s source=%s mode=%s total=%d imported=%d existing=%d failed=%d dropped=%d %dms %s\n",
				r.CreatedAt.Format(time.RFC3339), r.TraceID, r.Source, r.Mode,
				r.Summary.TotalCandidates, r.Summary.Imported, r.Summary.SkippedExisting, r.Summary.SkippedFailed,
				r.DroppedLines, r.DurationMs, r.Error)
		}
	case "stock:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		barcode := fs.String("barcode", "", "scanned barcode")
		qty := fs.Int("qty", 1, "quantity")
		_ = fs.Parse(args)
		res, err := a.Stock.Add(ctx, *barcode, *qty)
		must(err)
		desc := "(not in catalog)"
		if res.Product != nil {
			desc = res.Product.Description
		}
		fmt.Printf("counted id=%s barcode=%s qty=%d %s\n", res.Item.ID, res.Item.Barcode, res.Item.Quantity, desc)
	case "stock:set":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "item id")
		qty := fs.Int("qty", 0, "new quantity, 0 removes the item")
		_ = fs.Parse(args)
		removed, err := a.Stock.UpdateQuantity(ctx, *id, *qty)
		must(err)
		if removed {
			fmt.Printf("removed id=%s\n", *id)
			return
		}
		fmt.Printf("updated id=%s qty=%d\n", *id, *qty)
	case "stock:remove":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "item id")
		_ = fs.Parse(args)
		must(a.Stock.Remove(ctx, *id))
		fmt.Printf("removed id=%s\n", *id)
	case "stock:list":
		items, err := a.Stock.List(ctx)
		must(err)
		for _, it := range items {
			fmt.Printf("%s\t%s\t%d\t%s\n", it.ID, it.Barcode, it.Quantity, it.Timestamp.In(cfg.Location()).Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("items=%d quantity=%d\n", len(items), stock.TotalQuantity(items))
	case "stock:clear":
		n, err := a.Stock.Clear(ctx)
		must(err)
		fmt.Printf("deleted %d items\n", n)
	case "stock:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", cfg.OutputDir, "output directory")
		format := fs.String("format", "txt", "txt|xlsx")
		_ = fs.Parse(args)
		switch strings.ToLower(*format) {
		case "txt":
			path, err := a.Stock.Export(ctx, *dir)
			must(err)
			fmt.Printf("exported %s\n", path)
		case "xlsx":
			path := filepath.Join(*dir, a.Stock.XLSXFileName())
			must(a.Stock.ExportXLSX(ctx, path))
			fmt.Printf("exported %s\n", path)
		default:
			must(fmt.Errorf("unsupported format: %s", *format))
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		fetch, err := a.Fetcher(ctx, *provider)
		must(err)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap, every provider when empty")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", cfg.MailListenerProcessBatch, "batch size")
		_ = fs.Parse(args)
		if strings.TrimSpace(*messageID) != "" {
			res, err := a.Mail.ProcessByProviderMessageID(ctx, *provider, *messageID)
			mustImport(res.Summary, err)
			fmt.Printf("processed email id=%d sources=%d\n", res.EmailID, res.Sources)
			printSummary(res.Summary)
			return
		}
		processed, summary, err := a.Mail.ProcessPending(ctx, *batch, *provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "processed pending emails=%d\n", processed)
		}
		mustImport(summary, err)
		fmt.Printf("processed pending emails=%d\n", processed)
		printSummary(summary)
	case "mail:listen":
		l, err := a.Listener(ctx)
		must(err)
		must(l.Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(args)
		must(serve(ctx, a, *addr))
	default:
		usage()
		os.Exit(1)
	}
}

func serve(ctx context.Context, a *app.App, addr string) error {
	gin.SetMode(a.Config.GinMode)
	srv := api.NewServer(addr, a.Handler(), a.Log)

	errCh := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Log.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

func readCatalog(path string) (content, source string, err error) {
	if path = strings.TrimSpace(path); path == "" || path == "-" {
		blob, err := io.ReadAll(os.Stdin)
		return string(blob), pipeline.SourceDirect, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return string(blob), "file:" + filepath.Base(path), nil
}

func printSummary(s internal.ImportSummary) {
	fmt.Printf("candidates=%d imported=%d existing=%d failed=%d\n", s.TotalCandidates, s.Imported, s.SkippedExisting, s.SkippedFailed)
}

func printProducts(items []internal.Product) {
	for _, p := range items {
		fmt.Printf("%s\t%s\t%s\n", p.ID, p.Code, p.Description)
	}
	fmt.Printf("%d products\n", len(items))
}

func usage() {
	fmt.Println("usage: stockcount <command>")
	fmt.Println("commands:")
	fmt.Println("  catalog:import [--file=catalog.txt]")
	fmt.Println("  catalog:sync [--force]")
	fmt.Println("  catalog:search --q=agua [--limit=50]")
	fmt.Println("  catalog:list [--page=1]")
	fmt.Println("  catalog:add --code=... --desc=...")
	fmt.Println("  catalog:remove --id=...")
	fmt.Println("  catalog:clear --yes")
	fmt.Println("  catalog:runs [--limit=20]")
	fmt.Println("  stock:add --barcode=... [--qty=1]")
	fmt.Println("  stock:set --id=... --qty=...")
	fmt.Println("  stock:remove --id=...")
	fmt.Println("  stock:list")
	fmt.Println("  stock:clear")
	fmt.Println("  stock:export [--dir=./out] [--format=txt|xlsx]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  serve [--addr=:8080]")
}

// mustImport reports what an interrupted import already committed before exiting.
func mustImport(s internal.ImportSummary, err error) {
	if err != nil && s.TotalCandidates > 0 {
		fmt.Fprintf(os.Stderr, "partial import: candidates=%d imported=%d existing=%d failed=%d\n", s.TotalCandidates, s.Imported, s.SkippedExisting, s.SkippedFailed)
	}
	must(err)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
