package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/vidweft/internal/models"
	"github.com/google/uuid"
)

const renderColumns = `
	id, status, narration_text, voice_id, add_music, add_subtitles,
	seconds_per_image, image_count, narration_asset_id, music_asset_id,
	captions_asset_id, final_video_asset_id, audio_mode, speed_factor,
	video_duration_ms, timeline_report, error_code, error_message,
	created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRender(row rowScanner, r *models.Render) error {
	return row.Scan(
		&r.ID, &r.Status, &r.NarrationText, &r.VoiceID, &r.AddMusic, &r.AddSubtitles,
		&r.SecondsPerImage, &r.ImageCount, &r.NarrationAssetID, &r.MusicAssetID,
		&r.CaptionsAssetID, &r.FinalVideoAssetID, &r.AudioMode, &r.SpeedFactor,
		&r.VideoDurationMs, &r.TimelineReport, &r.ErrorCode, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt,
	)
}

func (db *DB) CreateRender(ctx context.Context, render *models.Render) error {
	query := `
		INSERT INTO renders (
			id, status, narration_text, voice_id, add_music, add_subtitles,
			seconds_per_image, image_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		render.ID, render.Status, render.NarrationText, render.VoiceID,
		render.AddMusic, render.AddSubtitles, render.SecondsPerImage, render.ImageCount,
	).Scan(&render.CreatedAt, &render.UpdatedAt)
}

func (db *DB) GetRender(ctx context.Context, id uuid.UUID) (*models.Render, error) {
	query := `SELECT ` + renderColumns + ` FROM renders WHERE id = $1`

	render := &models.Render{}
	err := scanRender(db.QueryRowContext(ctx, query, id), render)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("render %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render: %w", err)
	}

	return render, nil
}

// ListRenders returns renders ordered by creation date (newest first).
// Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListRenders(ctx context.Context, status string, limit, offset int) ([]models.Render, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `SELECT ` + renderColumns + ` FROM renders`

	if status != "" {
		query := baseSelect + ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list renders: %w", err)
	}
	defer rows.Close()

	var renders []models.Render
	for rows.Next() {
		var r models.Render
		if err := scanRender(rows, &r); err != nil {
			return nil, fmt.Errorf("failed to scan render: %w", err)
		}
		renders = append(renders, r)
	}

	return renders, rows.Err()
}

// CountRenders returns the total number of renders, optionally filtered by status.
func (db *DB) CountRenders(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM renders WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM renders`).Scan(&count)
	return count, err
}

func (db *DB) UpdateRenderStatus(ctx context.Context, id uuid.UUID, status models.RenderStatus) error {
	query := `UPDATE renders SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

func (db *DB) UpdateRenderError(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error {
	query := `
		UPDATE renders
		SET status = $1, error_code = $2, error_message = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.RenderStatusFailed, errorCode, errorMessage, id)
	return err
}

// SetRenderTimeline stores the alignment outcome and the full timeline report.
func (db *DB) SetRenderTimeline(ctx context.Context, id uuid.UUID, report models.TimelineReport) error {
	query := `
		UPDATE renders
		SET audio_mode = $1, speed_factor = $2, video_duration_ms = $3,
			timeline_report = $4, updated_at = NOW()
		WHERE id = $5
	`
	_, err := db.ExecContext(
		ctx, query,
		string(report.Audio.Mode), report.Audio.SpeedFactor,
		int(report.VideoDuration*1000), report, id,
	)
	return err
}

// SetRenderAssets records the narration and music inputs of a render. Nil
// values leave the existing column untouched.
func (db *DB) SetRenderAssets(ctx context.Context, id uuid.UUID, narrationAssetID, musicAssetID *uuid.UUID) error {
	query := `
		UPDATE renders
		SET narration_asset_id = COALESCE($1, narration_asset_id),
			music_asset_id = COALESCE($2, music_asset_id),
			updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, narrationAssetID, musicAssetID, id)
	return err
}

// SetRenderFinalVideo attaches the outputs and marks the render completed.
func (db *DB) SetRenderFinalVideo(ctx context.Context, renderID, videoAssetID uuid.UUID, captionsAssetID *uuid.UUID) error {
	query := `
		UPDATE renders
		SET final_video_asset_id = $1, captions_asset_id = $2, status = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, videoAssetID, captionsAssetID, models.RenderStatusCompleted, renderID)
	return err
}
