// main.go - Batch CLI: extract every document in a directory and write XLSX/CSV.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/bosocmputer/document_extract_gemini/configs"
	"github.com/bosocmputer/document_extract_gemini/internal/ai"
	"github.com/bosocmputer/document_extract_gemini/internal/export"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/bosocmputer/document_extract_gemini/internal/processor"
	"github.com/bosocmputer/document_extract_gemini/internal/resolver"
	"github.com/bosocmputer/document_extract_gemini/internal/workspace"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir          = flag.String("dir", "", "directory with documents to extract (required)")
		templatePath = flag.String("template", "", "template JSON file (defaults to the built-in fields)")
		docTypeStr   = flag.String("doctype", "", "document type: invoice or delivery (defaults to the template's)")
		rulesPath    = flag.String("rules", "", "company rules text file (defaults to the built-in rules, \"-\" for none)")
		out          = flag.String("out", "", "output file path without extension (defaults to <dir>/抽出データ_YYYY-MM-DD)")
		format       = flag.String("format", "xlsx", "output format: xlsx, csv or both")
		crlf         = flag.Bool("crlf", false, "use CRLF line endings in CSV")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *format != "xlsx" && *format != "csv" && *format != "both" {
		printError("Error: --format must be xlsx, csv or both\n")
		os.Exit(1)
	}

	configs.LoadConfig()
	configs.RequireAPIKey()

	fields, docType, err := loadFields(*templatePath, *docTypeStr)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	rules, err := loadRules(*rulesPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	files, err := collectFiles(*dir)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	resolverRules, err := resolver.LoadRules(configs.RESOLVER_RULES_PATH)
	if err != nil {
		log.Fatalf("Failed to load resolver rules: %v", err)
	}
	extractor, err := ai.NewExtractorWithFallback(ai.ProviderConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to create AI provider: %v", err)
	}
	orchestrator := processor.NewOrchestrator(extractor, resolver.New(resolverRules), processor.PrepareOptions{
		Enhance:      configs.ENABLE_IMAGE_PREPROCESSING,
		MaxDimension: configs.MAX_IMAGE_DIMENSION,
	})

	// Ctrl-C stops before the next file; finished files are still exported
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch, err := orchestrator.Run(ctx, processor.RunRequest{
		Files:        files,
		Fields:       fields,
		Rules:        rules,
		DocumentType: docType,
		OnProgress: func(p processor.Progress) {
			status := "✅"
			if !p.Result.Success {
				status = "❌ " + p.Result.Error
			}
			log.Printf("[%d/%d] %s %s", p.Index+1, p.Total, p.FileName, status)
		},
	})
	if err != nil {
		log.Fatalf("Batch failed: %v", err)
	}
	log.Printf("Batch %s: %s (cancelled: %v, cost: ¥%.2f)", batch.ID, batch, batch.Cancelled, batch.Tokens.CostJPY)

	grid, err := export.BuildGrid(batch.Fields, batch.Results)
	if err != nil {
		log.Fatalf("Nothing exported: %v", err)
	}

	base := *out
	if base == "" {
		base = filepath.Join(*dir, export.DefaultBaseName+"_"+time.Now().Format("2006-01-02"))
	}
	if *format == "xlsx" || *format == "both" {
		if err := writeFile(base+".xlsx", func(f *os.File) error { return export.WriteXLSX(f, grid) }); err != nil {
			log.Fatalf("Failed to write XLSX: %v", err)
		}
	}
	if *format == "csv" || *format == "both" {
		opts := export.CSVOptions{CRLF: *crlf}
		if err := writeFile(base+".csv", func(f *os.File) error { return export.WriteCSV(f, grid, opts) }); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
	}
}

// loadFields reads the template file, or falls back to the default fields.
// An explicit document type overrides the template's.
func loadFields(path, docTypeStr string) ([]model.Field, model.DocumentType, error) {
	fields := model.DefaultFields()
	docType := model.DocumentInvoice

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read template: %w", err)
		}
		t, _, err := workspace.ParseTemplate(data, 1)
		if err != nil {
			return nil, "", err
		}
		fields = t.Fields
		if t.DocumentType != "" {
			docType = t.DocumentType
		}
	}

	if docTypeStr != "" {
		dt, err := model.ParseDocumentType(docTypeStr)
		if err != nil {
			return nil, "", err
		}
		docType = dt
	}
	return fields, docType, nil
}

func loadRules(path string) (*model.CompanyRuleSet, error) {
	switch path {
	case "":
		return &model.CompanyRuleSet{Text: model.DefaultCompanyRules}, nil
	case "-":
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read company rules: %w", err)
	}
	return &model.CompanyRuleSet{Text: string(data)}, nil
}

// collectFiles reads every supported document in dir, sorted by name.
func collectFiles(dir string) ([]processor.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := processor.DetectMIMEType(e.Name()); err != nil {
			log.Printf("⚠️  Skipping %s: %v", e.Name(), err)
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]processor.FileInput, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		files = append(files, processor.FileInput{Name: name, Data: data})
	}
	return files, nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("📄 Wrote %s", path)
	return nil
}
