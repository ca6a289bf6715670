package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/internal/ingest"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
)

func ingestCMD() *cobra.Command {
	var dataFile string
	var cfgPath string

	var cmd = &cobra.Command{
		Use:   "ingest",
		Short: "Load documents into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if dataFile == "" {
				dataFile = cfg.Ingest.DataFile
			}
			if dataFile == "" {
				return fmt.Errorf("no data file given (--file or ingest.data_file)")
			}

			ctx := context.Background()
			st, err := store.New(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("postgres connection failed: %w", err)
			}
			defer st.DB.Close()

			vc := vector.NewClient(vector.Config{
				Host:            cfg.Vector.Host,
				Port:            cfg.Vector.Port,
				Collection:      cfg.Vector.Collection,
				DenseModel:      cfg.Vector.DenseModel,
				SparseModel:     cfg.Vector.SparseModel,
				DenseDimensions: cfg.Vector.DenseDimensions,
				TopK:            cfg.Vector.TopK,
				Threshold:       cfg.Vector.Threshold,
				Timeout:         cfg.Vector.Timeout,
			})

			ing := ingest.New(vc, st, cfg.Vector.DenseModel, cfg.Vector.SparseModel, cfg.Ingest.BatchSize)
			return ing.Run(ctx, dataFile)
		},
	}
	cmd.Flags().StringVarP(&dataFile, "file", "f", "", "JSON or JSONL document file")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
