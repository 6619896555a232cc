package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"trapcat/internal/consistency"
	"trapcat/internal/findings"
	"trapcat/internal/imagemeta"
	"trapcat/internal/index"
	"trapcat/internal/logging"
	"trapcat/internal/metadata"
	"trapcat/internal/schema"
	"trapcat/internal/workpool"
)

// PhaseProbe is the phase name reported to Progress while images decode.
const PhaseProbe = "probe"

// detectionNamespace seeds the name-based UUIDs of ingested detections, so
// an unchanged source always yields the same annotation identifiers.
var detectionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("trapcat:detection"))

// DetectionID returns the identifier assigned to the ingested detection of
// imageID.
func DetectionID(imageID string) string {
	return uuid.NewSHA1(detectionNamespace, []byte(imageID)).String()
}

// Prober reads image dimensions and, optionally, pixel statistics.
type Prober interface {
	Probe(ctx context.Context, path string) (imagemeta.Info, error)
}

// Builder assembles a Catalog from metadata rows.
type Builder struct {
	Root string
	// Prober defaults to imagemeta.Prober with Stats set from ChannelStats.
	Prober  Prober
	Workers int
	// Timeout bounds each probe; zero waits indefinitely.
	Timeout time.Duration
	// Dataset supplies the descriptive Info fields. DateCreated is taken
	// from Clock, and channel statistics are computed.
	Dataset schema.Info
	Clock   func() time.Time
	// DateLayouts are tried in order when parsing capture dates.
	DateLayouts  []string
	ChannelStats bool
	// AbortOn lists finding kinds that stop the build.
	AbortOn  []findings.Kind
	Logger   *slog.Logger
	Progress workpool.ProgressFunc
}

type candidate struct {
	filename string
	row      metadata.Row
	rows     []int
	imageID  string
	detID    string
	probe    imagemeta.Info
	err      error
}

// Build emits the catalog for every indexed filename not reported missing.
// Findings discovered while building are added to report. On any error the
// returned catalog is nil.
func (b *Builder) Build(ctx context.Context, rows []metadata.Row, idx *index.Index, report *findings.Report) (*Catalog, error) {
	if idx == nil {
		return nil, errors.New("catalog: nil index")
	}
	if report == nil {
		report = findings.NewReport()
	}
	logger := logging.WithContext(logging.WithStage(ctx, "catalog"), logging.NewComponentLogger(b.Logger, "catalog"))

	if err := b.checkPolicy(report); err != nil {
		return nil, err
	}

	candidates, err := b.selectRows(rows, idx, report)
	if err != nil {
		return nil, err
	}
	if err := b.probeAll(ctx, candidates); err != nil {
		return nil, err
	}

	cat, err := b.assemble(candidates, report, logger)
	if err != nil {
		return nil, err
	}
	if err := b.checkPolicy(report); err != nil {
		return nil, err
	}

	counts := cat.Counts()
	logger.Info("catalog built",
		logging.Int("images", counts.Images),
		logging.Int("annotations", counts.Annotations),
		logging.Int("categories", counts.Categories),
		logging.String("summary", fmt.Sprintf("%s images in %s categories",
			humanize.Comma(int64(counts.Images)), humanize.Comma(int64(counts.Categories)))),
	)
	for _, cc := range cat.CategoryCounts() {
		logger.Info("category count",
			logging.Int("category_id", cc.ID),
			logging.String("category", cc.Name),
			logging.Int("annotations", cc.Count),
		)
	}
	return cat, nil
}

func (b *Builder) checkPolicy(report *findings.Report) error {
	for _, kind := range b.AbortOn {
		if n := report.Count(kind); n > 0 {
			return fmt.Errorf("%w: %d %s finding(s)", ErrAbortedByPolicy, n, kind)
		}
	}
	return nil
}

// selectRows picks the authoritative row per surviving filename and derives
// identifiers. Collisions are detected here, before any image is decoded.
func (b *Builder) selectRows(rows []metadata.Row, idx *index.Index, report *findings.Report) ([]*candidate, error) {
	missing := report.Filenames(findings.MissingImageFile)
	imageOwners := make(map[string]string, idx.Len())
	detOwners := make(map[string]string, idx.Len())

	var out []*candidate
	for _, fn := range idx.Filenames() {
		if _, skip := missing[fn]; skip {
			continue
		}
		first, ok := idx.First(fn)
		if !ok || first >= len(rows) {
			return nil, fmt.Errorf("catalog: index row %d for %q outside metadata", first, fn)
		}
		imageID := index.ImageID(fn)
		if owner, dup := imageOwners[imageID]; dup {
			return nil, fmt.Errorf("%w: image id %q derived from %q and %q", ErrIdentifierCollision, imageID, owner, fn)
		}
		imageOwners[imageID] = fn
		detID := DetectionID(imageID)
		if owner, dup := detOwners[detID]; dup {
			return nil, fmt.Errorf("%w: detection id %s derived from %q and %q", ErrIdentifierCollision, detID, owner, fn)
		}
		detOwners[detID] = fn

		out = append(out, &candidate{
			filename: fn,
			row:      rows[first],
			rows:     idx.Rows(fn),
			imageID:  imageID,
			detID:    detID,
		})
	}
	return out, nil
}

func (b *Builder) probeAll(ctx context.Context, candidates []*candidate) error {
	prober := b.Prober
	if prober == nil {
		prober = imagemeta.Prober{Stats: b.ChannelStats}
	}
	tracker := workpool.NewTracker(PhaseProbe, len(candidates), b.Progress)
	return workpool.Run(ctx, len(candidates), b.Workers, func(ctx context.Context, i int) error {
		c := candidates[i]
		defer tracker.Done()
		full, ok := consistency.Resolve(b.Root, c.filename)
		if !ok {
			c.err = errors.New("path escapes image root")
			return nil
		}
		info, err := workpool.Bounded(ctx, b.Timeout, func(ctx context.Context) (imagemeta.Info, error) {
			return prober.Probe(ctx, full)
		})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		c.probe, c.err = info, err
		return nil
	})
}

// assemble runs sequentially in index order so category IDs and channel
// statistics do not depend on worker scheduling.
func (b *Builder) assemble(candidates []*candidate, report *findings.Report, logger *slog.Logger) (*Catalog, error) {
	registry := NewRegistry()
	var sums imagemeta.ChannelSums
	cat := &Catalog{
		Images:      make([]schema.Image, 0, len(candidates)),
		Annotations: make([]schema.Detection, 0, len(candidates)),
	}

	for _, c := range candidates {
		if c.err != nil {
			report.Add(findings.Finding{
				Kind:     findings.UnreadableImage,
				Filename: c.filename,
				Rows:     c.rows,
				Detail:   c.err.Error(),
			})
			logging.WarnWithContext(logger, "image dropped", string(findings.UnreadableImage),
				logging.String(logging.FieldFilename, c.filename),
				logging.Error(c.err),
				logging.String(logging.FieldErrorHint, "re-export or replace the image file"),
				logging.String(logging.FieldImpact, "image and its annotation are excluded from the catalog"),
			)
			continue
		}

		img, err := b.image(c, logger)
		if err != nil {
			b.reportViolation(report, logger, c, err)
			continue
		}
		name := schema.CategoryNameFor(c.row.Species)
		categoryID := registry.Assign(name)
		det, err := schema.NewDetection(schema.Detection{
			ID:         c.detID,
			ImageID:    img.ID,
			Kind:       schema.ModelDetection,
			CategoryID: categoryID,
		})
		if err != nil {
			b.reportViolation(report, logger, c, err)
			continue
		}

		cat.Images = append(cat.Images, img)
		cat.Annotations = append(cat.Annotations, det)
		if c.probe.Sums != nil {
			sums.Add(*c.probe.Sums)
		}
	}
	cat.Categories = registry.Categories()

	info := b.Dataset
	info.DateCreated = schema.NewDate(b.now())
	info.ChannelStats = schema.UnsetChannelStats()
	if b.ChannelStats {
		if mean, std, ok := sums.MeanStd(); ok {
			info.ChannelStats = schema.ChannelStats{Mean: mean, Std: std}
		}
	}
	validated, err := schema.NewInfo(info)
	if err != nil {
		return nil, fmt.Errorf("dataset info: %w", err)
	}
	cat.Info = validated
	return cat, nil
}

func (b *Builder) reportViolation(report *findings.Report, logger *slog.Logger, c *candidate, err error) {
	report.Add(findings.Finding{
		Kind:     findings.SchemaViolation,
		Filename: c.filename,
		Rows:     c.rows,
		Detail:   err.Error(),
	})
	logging.WarnWithContext(logger, "metadata row rejected", string(findings.SchemaViolation),
		logging.String(logging.FieldFilename, c.filename),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "correct the row values in the metadata export"),
		logging.String(logging.FieldImpact, "image and its annotation are excluded from the catalog"),
	)
}

func (b *Builder) image(c *candidate, logger *slog.Logger) (schema.Image, error) {
	if err := c.row.Err(); err != nil {
		return schema.Image{}, fmt.Errorf("line %d: %w", c.row.Line, err)
	}
	grayscale := c.probe.Grayscale
	img := schema.Image{
		ID:           c.imageID,
		FileName:     c.filename,
		Width:        c.probe.Width,
		Height:       c.probe.Height,
		Grayscale:    &grayscale,
		Location:     c.row.Station,
		SeqID:        c.row.SeqID,
		FrameNum:     c.row.FrameNum,
		SeqNumFrames: c.row.SeqNumFrames,
	}
	if c.row.PhotoType != nil {
		img.PhotoType = strings.TrimSpace(*c.row.PhotoType)
	}
	if c.row.Date != "" {
		if ts, ok := ParseDate(c.row.Date, b.DateLayouts); ok {
			img.DateTime = schema.NewTimestamp(ts)
		} else {
			logging.WarnWithContext(logger, "unparseable capture date", "unparseable_date",
				logging.String(logging.FieldFilename, c.filename),
				logging.String("date", c.row.Date),
				logging.String(logging.FieldErrorHint, "add the date format to metadata.date_layouts"),
				logging.String(logging.FieldImpact, "image is catalogued without a capture time"),
			)
		}
	}
	return schema.NewImage(img)
}

// ParseDate tries each layout in order and returns the first match in UTC.
func ParseDate(value string, layouts []string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (b *Builder) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}
