package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"trapcat/internal/schema"
)

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite initializes or connects to the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force and
	// serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLite{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

func (s *SQLite) PutInfo(ctx context.Context, info schema.Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertInfo(ctx, tx, info)
	})
}

func insertInfo(ctx context.Context, q querier, info schema.Info) error {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(1) FROM info").Scan(&count); err != nil {
		return fmt.Errorf("count info: %w", err)
	}
	if count > 0 {
		return ErrInfoExists
	}
	stats := info.ChannelStats
	_, err := q.ExecContext(ctx,
		`INSERT INTO info (id, `+infoColumns+`) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.Name,
		info.Description,
		info.Contributor,
		info.SecondaryContributor,
		info.Version,
		info.Year,
		info.DateCreated.Format(schema.DateLayout),
		stats.Mean[0], stats.Mean[1], stats.Mean[2],
		stats.Std[0], stats.Std[1], stats.Std[2],
	)
	return constraintError(err, "insert info")
}

func (s *SQLite) Info(ctx context.Context) (schema.Info, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+infoColumns+` FROM info WHERE id = 1`)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Info{}, fmt.Errorf("info: %w", ErrNotFound)
	}
	if err != nil {
		return schema.Info{}, fmt.Errorf("get info: %w", err)
	}
	return info, nil
}

func (s *SQLite) PutImage(ctx context.Context, img schema.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	return retryOnBusy(ctx, func() error {
		return insertImage(ctx, s.db, img)
	})
}

func insertImage(ctx context.Context, q querier, img schema.Image) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO images (`+imageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID,
		img.FileName,
		img.Width,
		img.Height,
		nullableBool(img.Grayscale),
		nullableFloat(img.RelativeSize),
		img.SourceFileName,
		nullableString(img.SeqID),
		nullableInt(img.SeqNumFrames),
		nullableInt(img.FrameNum),
		nullableString(img.Location),
		nullableString(img.PhotoType),
		nullableTimestamp(img.DateTime),
	)
	return constraintError(err, "image "+img.ID)
}

func (s *SQLite) Image(ctx context.Context, id string) (schema.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Image{}, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return schema.Image{}, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func (s *SQLite) Images(ctx context.Context) ([]schema.Image, error) {
	return queryImages(ctx, s.db)
}

func queryImages(ctx context.Context, q querier) ([]schema.Image, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var images []schema.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLite) PutCategory(ctx context.Context, cat schema.Category) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	return retryOnBusy(ctx, func() error {
		return insertCategory(ctx, s.db, cat)
	})
}

func insertCategory(ctx context.Context, q querier, cat schema.Category) error {
	_, err := q.ExecContext(ctx, `INSERT INTO categories (id, name) VALUES (?, ?)`, cat.ID, cat.Name)
	return constraintError(err, fmt.Sprintf("category %d %q", cat.ID, cat.Name))
}

func (s *SQLite) Category(ctx context.Context, id int) (schema.Category, error) {
	var cat schema.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&cat.ID, &cat.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Category{}, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return schema.Category{}, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

func (s *SQLite) CategoryByName(ctx context.Context, name string) (schema.Category, error) {
	var cat schema.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE name = ?`, name).Scan(&cat.ID, &cat.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Category{}, fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return schema.Category{}, fmt.Errorf("get category by name: %w", err)
	}
	return cat, nil
}

func (s *SQLite) Categories(ctx context.Context) ([]schema.Category, error) {
	return queryCategories(ctx, s.db)
}

func queryCategories(ctx context.Context, q querier) ([]schema.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []schema.Category
	for rows.Next() {
		var cat schema.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

func (s *SQLite) PutDetection(ctx context.Context, det schema.Detection) error {
	if err := det.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkDetectionRefs(ctx, tx, det); err != nil {
			return err
		}
		return insertDetection(ctx, tx, det)
	})
}

func insertDetection(ctx context.Context, q querier, det schema.Detection) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO detections (`+detectionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		det.ID,
		det.ImageID,
		int(det.Kind),
		det.CategoryID,
		nullableFloat(det.Confidence),
	)
	return constraintError(err, "detection "+det.ID)
}

func exists(ctx context.Context, q querier, query string, arg any) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func checkDetectionRefs(ctx context.Context, q querier, det schema.Detection) error {
	ok, err := exists(ctx, q, `SELECT COUNT(1) FROM images WHERE id = ?`, det.ImageID)
	if err != nil {
		return fmt.Errorf("check image: %w", err)
	}
	if !ok {
		return fmt.Errorf("detection %s: image %s: %w", det.ID, det.ImageID, ErrNotFound)
	}
	return checkCategory(ctx, q, "detection "+det.ID, det.CategoryID)
}

func checkCategory(ctx context.Context, q querier, subject string, id int) error {
	ok, err := exists(ctx, q, `SELECT COUNT(1) FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s: category %d: %w", subject, id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) UpdateDetection(ctx context.Context, det schema.Detection) error {
	if err := det.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateDetection(ctx, tx, det)
	})
}

func updateDetection(ctx context.Context, q querier, det schema.Detection) error {
	current, err := getDetection(ctx, q, det.ID)
	if err != nil {
		return err
	}
	if current.ImageID != det.ImageID {
		return fmt.Errorf("detection %s: image reference is immutable (%s -> %s)", det.ID, current.ImageID, det.ImageID)
	}
	if err := checkCategory(ctx, q, "detection "+det.ID, det.CategoryID); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE detections SET kind = ?, category_id = ?, confidence = ? WHERE id = ?`,
		int(det.Kind),
		det.CategoryID,
		nullableFloat(det.Confidence),
		det.ID,
	)
	if err != nil {
		return fmt.Errorf("update detection: %w", err)
	}
	return nil
}

func getDetection(ctx context.Context, q querier, id string) (schema.Detection, error) {
	row := q.QueryRowContext(ctx, `SELECT `+detectionColumns+` FROM detections WHERE id = ?`, id)
	det, err := scanDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Detection{}, fmt.Errorf("detection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return schema.Detection{}, fmt.Errorf("get detection: %w", err)
	}
	return det, nil
}

func (s *SQLite) Detection(ctx context.Context, id string) (schema.Detection, error) {
	return getDetection(ctx, s.db, id)
}

func (s *SQLite) DetectionsByImage(ctx context.Context, imageID string) ([]schema.Detection, error) {
	return queryDetections(ctx, s.db, `WHERE image_id = ?`, imageID)
}

func (s *SQLite) DetectionsByKind(ctx context.Context, kind schema.DetectionKind) ([]schema.Detection, error) {
	return queryDetections(ctx, s.db, `WHERE kind = ?`, int(kind))
}

func queryDetections(ctx context.Context, q querier, where string, args ...any) ([]schema.Detection, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+detectionColumns+` FROM detections `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var dets []schema.Detection
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		dets = append(dets, det)
	}
	return dets, rows.Err()
}

func (s *SQLite) PutOracle(ctx context.Context, oracle schema.Oracle) error {
	if err := oracle.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertOracle(ctx, tx, oracle)
	})
}

func upsertOracle(ctx context.Context, q querier, oracle schema.Oracle) error {
	if _, err := getDetection(ctx, q, oracle.DetectionID); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if oracle.Label != nil {
		if err := checkCategory(ctx, q, "oracle "+oracle.DetectionID, *oracle.Label); err != nil {
			return err
		}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO oracles (detection_id, label) VALUES (?, ?)
         ON CONFLICT(detection_id) DO UPDATE SET label = excluded.label`,
		oracle.DetectionID,
		nullableInt(oracle.Label),
	)
	return constraintError(err, "oracle "+oracle.DetectionID)
}

func (s *SQLite) OracleByDetection(ctx context.Context, detectionID string) (schema.Oracle, error) {
	var label sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT label FROM oracles WHERE detection_id = ?`, detectionID).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Oracle{}, fmt.Errorf("oracle for detection %s: %w", detectionID, ErrNotFound)
	}
	if err != nil {
		return schema.Oracle{}, fmt.Errorf("get oracle: %w", err)
	}
	return schema.Oracle{DetectionID: detectionID, Label: intPtr(label)}, nil
}

func queryOracles(ctx context.Context, q querier) ([]schema.Oracle, error) {
	rows, err := q.QueryContext(ctx, `SELECT detection_id, label FROM oracles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query oracles: %w", err)
	}
	defer rows.Close()

	var oracles []schema.Oracle
	for rows.Next() {
		var (
			oracle schema.Oracle
			label  sql.NullInt64
		)
		if err := rows.Scan(&oracle.DetectionID, &label); err != nil {
			return nil, err
		}
		oracle.Label = intPtr(label)
		oracles = append(oracles, oracle)
	}
	return oracles, rows.Err()
}

func (s *SQLite) Apply(ctx context.Context, changes Changes) error {
	if err := changes.validate(); err != nil {
		return err
	}
	if changes.Len() == 0 {
		return ctx.Err()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, cat := range changes.Categories {
			if err := insertCategory(ctx, tx, cat); err != nil {
				return err
			}
		}
		for _, det := range changes.Detections {
			if err := checkDetectionRefs(ctx, tx, det); err != nil {
				return err
			}
			if err := insertDetection(ctx, tx, det); err != nil {
				return err
			}
		}
		for _, det := range changes.Updates {
			if err := updateDetection(ctx, tx, det); err != nil {
				return err
			}
		}
		for _, oracle := range changes.Oracles {
			if err := upsertOracle(ctx, tx, oracle); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) Import(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var total int
		err := tx.QueryRowContext(ctx, `SELECT
            (SELECT COUNT(1) FROM info) + (SELECT COUNT(1) FROM images) +
            (SELECT COUNT(1) FROM categories) + (SELECT COUNT(1) FROM detections)`).Scan(&total)
		if err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		if total > 0 {
			return ErrNotEmpty
		}

		if snap.Info != nil {
			if err := insertInfo(ctx, tx, *snap.Info); err != nil {
				return err
			}
		}
		for _, img := range snap.Images {
			if err := insertImage(ctx, tx, img); err != nil {
				return err
			}
		}
		for _, cat := range snap.Categories {
			if err := insertCategory(ctx, tx, cat); err != nil {
				return err
			}
		}
		for _, det := range snap.Detections {
			if err := insertDetection(ctx, tx, det); err != nil {
				return err
			}
		}
		for _, oracle := range snap.Oracles {
			_, err := tx.ExecContext(ctx, `INSERT INTO oracles (detection_id, label) VALUES (?, ?)`,
				oracle.DetectionID, nullableInt(oracle.Label))
			if err != nil {
				return constraintError(err, "oracle "+oracle.DetectionID)
			}
		}
		return nil
	})
}

func (s *SQLite) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		snap = Snapshot{}
		row := tx.QueryRowContext(ctx, `SELECT `+infoColumns+` FROM info WHERE id = 1`)
		info, err := scanInfo(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("get info: %w", err)
		default:
			snap.Info = &info
		}
		if snap.Images, err = queryImages(ctx, tx); err != nil {
			return err
		}
		if snap.Categories, err = queryCategories(ctx, tx); err != nil {
			return err
		}
		if snap.Detections, err = queryDetections(ctx, tx, ""); err != nil {
			return err
		}
		if snap.Oracles, err = queryOracles(ctx, tx); err != nil {
			return err
		}
		return nil
	})
	return snap, err
}

var _ Store = (*SQLite)(nil)
