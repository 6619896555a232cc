package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trapcat/internal/schema"
)

const (
	sqliteBusyCode          = 5
	sqliteConstraintUnique  = 2067
	sqliteConstraintPK      = 1555
	sqliteConstraintFK      = 787
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteCode(err error) (int, bool) {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code(), true
	}
	return 0, false
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// constraintError maps SQLite constraint failures onto the package sentinels.
func constraintError(err error, subject string) error {
	if err == nil {
		return nil
	}
	code, _ := sqliteCode(err)
	msg := err.Error()
	switch {
	case code == sqliteConstraintUnique, code == sqliteConstraintPK,
		strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", subject, ErrDuplicate)
	case code == sqliteConstraintFK, strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", subject, err)
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableBool(value *bool) any {
	if value == nil {
		return nil
	}
	if *value {
		return 1
	}
	return 0
}

func nullableTimestamp(value *schema.Timestamp) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(schema.TimestampLayout)
}

func intPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	n := int(value.Int64)
	return &n
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Float64
	return &f
}

func boolPtr(value sql.NullInt64) *bool {
	if !value.Valid {
		return nil
	}
	b := value.Int64 != 0
	return &b
}

const imageColumns = "id, file_name, width, height, grayscale, relative_size, source_file_name, seq_id, seq_num_frames, frame_num, location, photo_type, datetime"

const detectionColumns = "id, image_id, kind, category_id, confidence"

const infoColumns = "name, description, contributor, secondary_contributor, version, year, date_created, rm, gm, bm, rs, gs, bs"

type scanner interface{ Scan(dest ...any) error }

func scanImage(row scanner) (schema.Image, error) {
	var (
		img          schema.Image
		grayscale    sql.NullInt64
		relativeSize sql.NullFloat64
		seqID        sql.NullString
		seqNumFrames sql.NullInt64
		frameNum     sql.NullInt64
		location     sql.NullString
		photoType    sql.NullString
		datetimeRaw  sql.NullString
	)
	if err := row.Scan(
		&img.ID,
		&img.FileName,
		&img.Width,
		&img.Height,
		&grayscale,
		&relativeSize,
		&img.SourceFileName,
		&seqID,
		&seqNumFrames,
		&frameNum,
		&location,
		&photoType,
		&datetimeRaw,
	); err != nil {
		return schema.Image{}, err
	}
	img.Grayscale = boolPtr(grayscale)
	img.RelativeSize = floatPtr(relativeSize)
	img.SeqID = seqID.String
	img.SeqNumFrames = intPtr(seqNumFrames)
	img.FrameNum = intPtr(frameNum)
	img.Location = location.String
	img.PhotoType = photoType.String
	if datetimeRaw.Valid && datetimeRaw.String != "" {
		parsed, err := time.Parse(schema.TimestampLayout, datetimeRaw.String)
		if err != nil {
			return schema.Image{}, fmt.Errorf("parse image %s datetime: %w", img.ID, err)
		}
		img.DateTime = schema.NewTimestamp(parsed)
	}
	return img, nil
}

func scanDetection(row scanner) (schema.Detection, error) {
	var (
		det        schema.Detection
		kind       int64
		confidence sql.NullFloat64
	)
	if err := row.Scan(&det.ID, &det.ImageID, &kind, &det.CategoryID, &confidence); err != nil {
		return schema.Detection{}, err
	}
	det.Kind = schema.DetectionKind(kind)
	det.Confidence = floatPtr(confidence)
	return det, nil
}

func scanInfo(row scanner) (schema.Info, error) {
	var (
		info    schema.Info
		dateRaw string
		stats   schema.ChannelStats
	)
	if err := row.Scan(
		&info.Name,
		&info.Description,
		&info.Contributor,
		&info.SecondaryContributor,
		&info.Version,
		&info.Year,
		&dateRaw,
		&stats.Mean[0], &stats.Mean[1], &stats.Mean[2],
		&stats.Std[0], &stats.Std[1], &stats.Std[2],
	); err != nil {
		return schema.Info{}, err
	}
	parsed, err := time.Parse(schema.DateLayout, dateRaw)
	if err != nil {
		return schema.Info{}, fmt.Errorf("parse info date: %w", err)
	}
	info.DateCreated = schema.Date{Time: parsed}
	info.ChannelStats = stats
	return info, nil
}
