package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// RunRepo implements ports.RunRepository.
type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save upserts the run and replaces its product rows in one transaction.
func (r *RunRepo) Save(ctx context.Context, report *domain.RunReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	var catalogPath, remotePrefix string
	if report.Catalog != nil {
		catalogPath = report.Catalog.CatalogPath
		remotePrefix = report.Catalog.RemotePrefix
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO pipeline_runs (id, input_catalog, bbox, asset_name, out_dir, dem_path, dem_error,
		                           output_catalog, remote_prefix, error, started_at, finished_at, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE
		SET dem_path = EXCLUDED.dem_path, dem_error = EXCLUDED.dem_error,
		    output_catalog = EXCLUDED.output_catalog, remote_prefix = EXCLUDED.remote_prefix,
		    error = EXCLUDED.error, finished_at = EXCLUDED.finished_at, report = EXCLUDED.report
	`, report.RunID, report.Request.CatalogPath, report.Request.BBox.Slice(), report.Request.AssetName,
		report.Request.OutDir, nilEmpty(report.DEMPath), nilEmpty(report.DEMError),
		nilEmpty(catalogPath), nilEmpty(remotePrefix), nilEmpty(report.Error),
		report.StartedAt, report.FinishedAt, doc)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_results WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("clear product results: %w", err)
	}

	batch := &pgx.Batch{}
	for i, res := range report.Results {
		itemID := ""
		if res.Product.Item != nil {
			itemID = res.Product.Item.ID
		}
		batch.Queue(`
			INSERT INTO product_results (run_id, position, product_path, item_id, state, output_path, error, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, report.RunID, i, res.Product.Path, nilEmpty(itemID), string(res.State),
			nilEmpty(res.OutputPath), nilEmpty(res.Error), res.Duration.Milliseconds())
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *RunRepo) GetByID(ctx context.Context, runID string) (*domain.RunReport, error) {
	var doc []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT report FROM pipeline_runs WHERE id = $1`, runID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var report domain.RunReport
	if err := json.Unmarshal(doc, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT report FROM pipeline_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.RunReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var report domain.RunReport
		if err := json.Unmarshal(doc, &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
