package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/models"
	"github.com/jgoriasilva/nfs/storage"
	"github.com/spf13/cobra"
)

func newStoresCommand() *cobra.Command {
	cfg := config.DefaultConfig()
	envErr := cfg.FromEnv()

	cmd := &cobra.Command{
		Use:   "stores",
		Short: "List the known stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return fmt.Errorf("invalid environment: %w", envErr)
			}
			tables, err := storage.Open(cfg.Backend, cfg.StorageLocation())
			if err != nil {
				return fmt.Errorf("open tables: %w", err)
			}
			defer tables.Close()

			stores, err := tables.LoadStores()
			if err != nil {
				return err
			}
			renderStores(cmd.OutOrStdout(), stores)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the csv tables")
	cmd.Flags().StringVar(&cfg.Backend, "backend", cfg.Backend, "Storage backend: csv or sqlite")
	cmd.Flags().StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database file for the sqlite backend")
	return cmd
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderStores(w io.Writer, stores []models.Store) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Store ID", "Tax ID", "Address"})
	for _, s := range stores {
		t.AppendRow(table.Row{s.StoreID, s.TaxID, s.Address})
	}
	t.Render()
}
