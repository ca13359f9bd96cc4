package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/pkg/config"
	"github.com/aiready/selfcheck-api/pkg/database"
)

// Seeds the fixed readiness checklist definition from a JSON file. Safe to
// re-run: rows are upserted by ID.
func main() {
	var (
		sourcePath string
		timeout    time.Duration
	)
	flag.StringVar(&sourcePath, "source", filepath.Join("scripts", "seed_checklist", "checklist.json"), "Path to checklist JSON file")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Database operation timeout")
	flag.Parse()

	items, err := loadChecklist(sourcePath)
	if err != nil {
		log.Fatalf("failed to load checklist: %v", err)
	}
	if len(items) == 0 {
		log.Fatal("checklist file contains no items")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	const query = `INSERT INTO checklist_items (id, category, title, description, assessment_type, mandatory, notes, sort_order)
VALUES (:id, :category, :title, :description, :assessment_type, :mandatory, :notes, :sort_order)
ON CONFLICT (id)
DO UPDATE SET category = EXCLUDED.category, title = EXCLUDED.title, description = EXCLUDED.description,
assessment_type = EXCLUDED.assessment_type, mandatory = EXCLUDED.mandatory, notes = EXCLUDED.notes, sort_order = EXCLUDED.sort_order`

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		log.Fatalf("failed to begin tx: %v", err)
	}
	for i := range items {
		if _, err := tx.NamedExecContext(ctx, query, items[i]); err != nil {
			_ = tx.Rollback()
			log.Fatalf("failed to upsert item %s: %v", items[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Fatalf("failed to commit: %v", err)
	}

	log.Printf("seeded %d checklist items from %s", len(items), sourcePath)
}

func loadChecklist(path string) ([]models.ChecklistItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []models.ChecklistItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
