package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/vidweft/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateAsset(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (
			id, render_id, type, position, storage_bucket,
			storage_path, content_type, byte_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		asset.ID, asset.RenderID, asset.Type, asset.Position,
		asset.StorageBucket, asset.StoragePath, asset.ContentType, asset.ByteSize,
	).Scan(&asset.CreatedAt)
}

func (db *DB) GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	query := `
		SELECT
			id, render_id, type, position, storage_bucket,
			storage_path, content_type, byte_size, created_at
		FROM assets
		WHERE id = $1
	`

	asset := &models.Asset{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&asset.ID, &asset.RenderID, &asset.Type, &asset.Position,
		&asset.StorageBucket, &asset.StoragePath, &asset.ContentType,
		&asset.ByteSize, &asset.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return asset, nil
}

// GetRenderAssets returns every asset of a render, grouped by type and in
// upload order within a type.
func (db *DB) GetRenderAssets(ctx context.Context, renderID uuid.UUID) ([]models.Asset, error) {
	query := `
		SELECT
			id, render_id, type, position, storage_bucket,
			storage_path, content_type, byte_size, created_at
		FROM assets
		WHERE render_id = $1
		ORDER BY type, position, created_at
	`
	return db.queryAssets(ctx, query, renderID)
}

// GetRenderAssetsByType returns a render's assets of one type ordered by position.
func (db *DB) GetRenderAssetsByType(ctx context.Context, renderID uuid.UUID, assetType models.AssetType) ([]models.Asset, error) {
	query := `
		SELECT
			id, render_id, type, position, storage_bucket,
			storage_path, content_type, byte_size, created_at
		FROM assets
		WHERE render_id = $1 AND type = $2
		ORDER BY position, created_at
	`
	return db.queryAssets(ctx, query, renderID, assetType)
}

func (db *DB) queryAssets(ctx context.Context, query string, args ...interface{}) ([]models.Asset, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var asset models.Asset
		err := rows.Scan(
			&asset.ID, &asset.RenderID, &asset.Type, &asset.Position,
			&asset.StorageBucket, &asset.StoragePath, &asset.ContentType,
			&asset.ByteSize, &asset.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}
