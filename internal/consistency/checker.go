package consistency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"trapcat/internal/findings"
	"trapcat/internal/index"
	"trapcat/internal/logging"
	"trapcat/internal/workpool"
)

// ErrRootUnreadable reports an image root that cannot be listed.
var ErrRootUnreadable = errors.New("image root unreadable")

// Phase names reported to Progress.
const (
	PhaseStat = "stat"
	PhaseWalk = "walk"
)

// Checker reconciles an index with the files under Root.
type Checker struct {
	Root string
	// Extensions lists lower-case extensions (with dot) counted as images
	// during the orphan walk. Empty means every regular file.
	Extensions []string
	Workers    int
	// Timeout bounds each existence check; zero waits indefinitely.
	Timeout  time.Duration
	Logger   *slog.Logger
	Progress workpool.ProgressFunc
}

// Check runs both directions and returns the findings. Findings are ordered
// duplicates, then blank-filename rows, then missing files in index order,
// then orphans in walk order.
func (c *Checker) Check(ctx context.Context, idx *index.Index) (*findings.Report, error) {
	logger := logging.WithContext(logging.WithStage(ctx, "check"), logging.NewComponentLogger(c.Logger, "consistency"))
	if err := c.ensureRoot(); err != nil {
		return nil, err
	}

	missing, err := c.findMissing(ctx, idx)
	if err != nil {
		return nil, err
	}
	orphans, err := c.findOrphans(ctx, idx, logger)
	if err != nil {
		return nil, err
	}
	attachHints(missing, orphans)

	report := findings.NewReport()
	for _, fn := range idx.Duplicates() {
		rows := idx.Rows(fn)
		report.Add(findings.Finding{
			Kind:     findings.DuplicateFilename,
			Filename: fn,
			Rows:     rows,
			Detail:   fmt.Sprintf("%d rows; row %d is used", len(rows), rows[0]),
		})
	}
	for _, pos := range idx.Blank() {
		report.Add(findings.Finding{
			Kind:   findings.SchemaViolation,
			Rows:   []int{pos},
			Detail: "filename is blank",
		})
	}
	for _, f := range missing {
		report.Add(f)
	}
	for _, f := range orphans {
		report.Add(f)
	}

	for _, f := range report.All() {
		logging.WarnWithContext(logger, "consistency finding", string(f.Kind),
			logging.String(logging.FieldFilename, f.Filename),
			logging.String("detail", f.Detail),
			logging.String(logging.FieldErrorHint, hintOrDefault(f)),
		)
	}
	logger.Info("consistency check complete",
		logging.Int("filenames", idx.Len()),
		logging.Int("duplicate_filenames", report.Count(findings.DuplicateFilename)),
		logging.Int("duplicate_rows", idx.DuplicateRowCount()),
		logging.Int("missing_files", report.Count(findings.MissingImageFile)),
		logging.Int("orphan_files", report.Count(findings.OrphanImageFile)),
		logging.Int("blank_rows", len(idx.Blank())),
	)
	return report, nil
}

func hintOrDefault(f findings.Finding) string {
	if f.Hint != "" {
		return f.Hint
	}
	switch f.Kind {
	case findings.MissingImageFile:
		return "the row is skipped; restore the file or fix the filename"
	case findings.OrphanImageFile:
		return "the file is not catalogued; add a metadata row for it"
	case findings.DuplicateFilename:
		return "only the first row is used; remove the extra rows"
	case findings.SchemaViolation:
		return "fill in the filename column or delete the row"
	default:
		return "check logs for details"
	}
}

func (c *Checker) ensureRoot() error {
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRootUnreadable, c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, c.Root)
	}
	dir, err := os.Open(c.Root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRootUnreadable, c.Root, err)
	}
	defer dir.Close()
	if _, err := dir.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", ErrRootUnreadable, c.Root, err)
	}
	return nil
}

func (c *Checker) findMissing(ctx context.Context, idx *index.Index) ([]findings.Finding, error) {
	filenames := idx.Filenames()
	details := make([]string, len(filenames))
	tracker := workpool.NewTracker(PhaseStat, len(filenames), c.Progress)

	err := workpool.Run(ctx, len(filenames), c.Workers, func(ctx context.Context, i int) error {
		detail, err := c.statFile(ctx, filenames[i])
		if err != nil {
			return err
		}
		details[i] = detail
		tracker.Done()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []findings.Finding
	for i, detail := range details {
		if detail == "" {
			continue
		}
		out = append(out, findings.Finding{
			Kind:     findings.MissingImageFile,
			Filename: filenames[i],
			Rows:     idx.Rows(filenames[i]),
			Detail:   detail,
		})
	}
	return out, nil
}

// statFile returns an empty detail when filename resolves to a regular file.
// Only context cancellation is returned as an error.
func (c *Checker) statFile(ctx context.Context, filename string) (string, error) {
	full, ok := Resolve(c.Root, filename)
	if !ok {
		return "path escapes image root", nil
	}
	// The walk reports canonical slash paths, so anything else could never
	// be matched against a file on disk.
	if cleaned := path.Clean(filename); cleaned != filename {
		return fmt.Sprintf("non-canonical path (canonical form %q)", cleaned), nil
	}
	info, err := workpool.Bounded(ctx, c.Timeout, func(context.Context) (os.FileInfo, error) {
		return os.Stat(full)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(err, workpool.ErrTimeout):
		return err.Error(), nil
	case errors.Is(err, fs.ErrNotExist):
		return "no such file", nil
	default:
		return err.Error(), nil
	}
	if !info.Mode().IsRegular() {
		return "not a regular file", nil
	}
	return "", nil
}

// Resolve joins a metadata filename onto root. It reports false for absolute
// names and names that climb out of root.
func Resolve(root, filename string) (string, bool) {
	if filename == "" || path.IsAbs(filename) || filepath.IsAbs(filename) {
		return "", false
	}
	cleaned := path.Clean(filename)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return filepath.Join(root, filepath.FromSlash(cleaned)), true
}

func (c *Checker) findOrphans(ctx context.Context, idx *index.Index, logger *slog.Logger) ([]findings.Finding, error) {
	tracker := workpool.NewTracker(PhaseWalk, 0, c.Progress)
	var out []findings.Finding
	err := filepath.WalkDir(c.Root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == c.Root {
				return fmt.Errorf("%w: %s: %v", ErrRootUnreadable, c.Root, walkErr)
			}
			logging.WarnWithContext(logger, "skipping unreadable path", "unreadable_directory",
				logging.String("path", p),
				logging.Error(walkErr),
				logging.String(logging.FieldErrorHint, "fix permissions so the orphan scan covers it"),
				logging.String(logging.FieldImpact, "orphan files below this path are not reported"),
			)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !c.acceptExtension(p) {
			return nil
		}
		rel, err := filepath.Rel(c.Root, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		tracker.Done()
		if !idx.Contains(rel) {
			out = append(out, findings.Finding{
				Kind:     findings.OrphanImageFile,
				Filename: rel,
				Detail:   "no metadata row",
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Checker) acceptExtension(p string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	return slices.Contains(c.Extensions, strings.ToLower(filepath.Ext(p)))
}
