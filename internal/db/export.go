package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/store"
)

// ExportStats counts exported records per crate.
type ExportStats struct {
	Crates   int
	Entities int
}

// Export copies every crate in the model cache into db, replacing earlier
// exports of the same crates. A corrupt cache record aborts the export of
// its crate and is returned.
func Export(ctx context.Context, s *store.Store, db *DB, logger *slog.Logger) (*ExportStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	crates, err := s.Paths(model.Crates)
	if err != nil {
		return nil, err
	}

	stats := &ExportStats{}
	for _, cp := range crates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		crate, err := store.LoadOne[model.Crate](s, model.Crates, cp)
		if err != nil {
			return stats, err
		}
		if crate == nil {
			continue
		}
		n, err := exportCrate(s, db, *crate)
		if err != nil {
			return stats, fmt.Errorf("exporting %s: %w", crate.Name, err)
		}
		logger.Info("exported crate", "crate", crate.Name, "entities", n)
		stats.Crates++
		stats.Entities += n
	}
	return stats, nil
}

func exportCrate(s *store.Store, db *DB, crate model.Crate) (int, error) {
	tx, err := db.BeginCrate(crate)
	if err != nil {
		return 0, err
	}

	n := 0
	if err := tx.Put(model.Crates, crate); err != nil {
		tx.Rollback()
		return 0, err
	}
	n++
	root := crate.FullPath()
	for _, cat := range model.Categories {
		if cat == model.Crates {
			continue
		}
		items, err := s.Load(cat, store.Query{Mode: store.Descendants, Path: root})
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		for _, item := range items {
			if err := tx.Put(cat, item); err != nil {
				tx.Rollback()
				return 0, err
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing export: %w", err)
	}
	return n, nil
}
