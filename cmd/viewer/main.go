package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/libersoft-org/yellow-server-module-messages/internal"
	"github.com/libersoft-org/yellow-server-module-messages/repositories"
)

// viewer dumps the persisted upload rows as a table, read-only, so an operator
// can inspect transfer state while the server holds the badger lock.
func main() {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := repositories.NewFileUploadRepository(db, nil)
	records, err := repo.ListAll()
	if err != nil {
		log.Fatalf("Failed to list upload rows: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Type", "Status", "File", "Size", "Chunks", "Updated"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, record := range records {
		table.Append([]string{
			record.ID,
			string(record.Type),
			string(record.Status),
			record.FileOriginalName,
			fmt.Sprintf("%d", record.FileSize),
			fmt.Sprintf("%d/%d", len(record.ChunksReceived), record.ExpectedChunks()),
			record.Updated.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
}
