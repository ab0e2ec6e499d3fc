package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/cnvx/internal/duckdb"
	"github.com/inodb/cnvx/internal/output"
)

func newQueryCmd(v *viper.Viper) *cobra.Command {
	var (
		gene, sample, dbPath string
		count                bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print stored CNV records for a gene as CSV",
		Long:  "Query records previously stored with --duckdb and print them as CSV on stdout.",
		Example: `  cnvx query --duckdb cnv.duckdb --gene EGFR
  cnvx query --duckdb cnv.duckdb --gene GUSB --sample LP1234567-DNA_A01
  cnvx query --duckdb cnv.duckdb --count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = v.GetString("output.duckdb")
			}
			if dbPath == "" {
				return &usageError{msg: "--duckdb is required"}
			}
			if gene == "" && !count {
				return &usageError{msg: "--gene is required"}
			}

			store, err := duckdb.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if count {
				n, err := store.RecordCount()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}

			recs, err := store.SearchByGene(gene, sample)
			if err != nil {
				return err
			}

			w := output.NewCSVWriter(cmd.OutOrStdout())
			if err := w.WriteHeader(); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			for _, rec := range recs {
				if err := w.Write(rec); err != nil {
					return fmt.Errorf("write record: %w", err)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "duckdb", "", "DuckDB database written by an earlier run")
	cmd.Flags().StringVar(&gene, "gene", "", "Gene symbol (HGNC)")
	cmd.Flags().StringVar(&sample, "sample", "", "Restrict to one sample id")
	cmd.Flags().BoolVar(&count, "count", false, "Print the number of stored records instead")

	return cmd
}
