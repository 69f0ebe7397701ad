package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zombor/invoice-extractor/internal/config"
	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/service"
	"github.com/zombor/invoice-extractor/internal/store"
	"github.com/zombor/invoice-extractor/internal/validation"
)

// fileReader reads documents straight from the local filesystem.
type fileReader struct{}

func (fileReader) Get(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newExtractCmd(cfg *config.Config) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "extract [document]",
		Short: "Extract invoice fields from a document",
		Example: `  # Extract with the pattern strategy and tesseract
  invoicectl extract invoice.png --strategy pattern

  # Extract with Gemini and validate the result against master data
  invoicectl extract invoice.pdf --strategy generative --model gemini --validate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			path := args[0]
			if !service.IsAllowedFile(path) {
				return service.ErrUnsupportedType
			}

			extractor, err := extraction.New(ctx, cfg.Extraction(), fileReader{})
			if err != nil {
				return fmt.Errorf("initializing extractor: %w", err)
			}
			defer extractor.Close()

			inv, err := extractor.Extract(ctx, path)
			if err != nil {
				return err
			}

			out := map[string]any{"data": inv}
			if validate {
				db, err := openDB(cfg)
				if err != nil {
					return err
				}
				defer db.Close()

				valid, report := validation.New(db).Validate(inv)
				out["valid"] = valid
				if !valid {
					out["errors"] = report
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate the extracted invoice against master data")
	return cmd
}

func newValidateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [invoice.json]",
		Short: "Validate an invoice JSON file against the business rules and master data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var inv invoice.Invoice
			if err := json.Unmarshal(data, &inv); err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			valid, report := validation.New(db).Validate(&inv)
			out := map[string]any{"valid": valid, "errors": nil}
			if !valid {
				out["errors"] = report
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("invoice %s is not valid", inv.InvoiceNumber)
			}
			return nil
		},
	}
}

func newSeedCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [masterdata.yaml]",
		Short: "Load master companies and items, skipping ones already present",
		Long: `Seed adds master companies (keyed by GSTIN) and items (keyed by HSN/SAC)
that are not in the database yet. Without a file the built-in set is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				md  *store.MasterData
				err error
			)
			if len(args) == 0 {
				md, err = store.DefaultMasterData()
			} else {
				var f *os.File
				f, err = os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				md, err = store.LoadMasterData(f)
			}
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := db.Seed(md)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d companies and %d items\n", result.Companies, result.Items)
			return nil
		},
	}
}

func newExportCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored invoice to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewService(db, nil, nil, nil, nil)
			data, err := svc.ExportInvoicesXLSX(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "invoices.xlsx", "Output file path")
	return cmd
}
