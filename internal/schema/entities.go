package schema

import (
	"strings"
	"time"
)

// UnsetStat is the sentinel stored in ChannelStats before statistics exist.
const UnsetStat = -1.0

// ChannelStats holds per-channel (R, G, B) pixel intensity statistics on a
// 0-1 scale.
type ChannelStats struct {
	Mean [3]float64 `json:"mean"`
	Std  [3]float64 `json:"std"`
}

// UnsetChannelStats returns stats with every channel at UnsetStat.
func UnsetChannelStats() ChannelStats {
	return ChannelStats{
		Mean: [3]float64{UnsetStat, UnsetStat, UnsetStat},
		Std:  [3]float64{UnsetStat, UnsetStat, UnsetStat},
	}
}

// IsSet reports whether any channel carries a real value.
func (s ChannelStats) IsSet() bool {
	for i := range 3 {
		if s.Mean[i] != UnsetStat || s.Std[i] != UnsetStat {
			return true
		}
	}
	return false
}

// Info describes one dataset produced by one ingestion run.
type Info struct {
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	Contributor          string       `json:"contributor"`
	SecondaryContributor string       `json:"secondary_contributor,omitempty"`
	Version              int          `json:"version"`
	Year                 int          `json:"year"`
	DateCreated          Date         `json:"date_created"`
	ChannelStats         ChannelStats `json:"channel_stats"`
}

// NewInfo validates and returns an Info. Zero-valued channel statistics are
// replaced by the unset sentinel.
func NewInfo(info Info) (Info, error) {
	if info.ChannelStats == (ChannelStats{}) {
		info.ChannelStats = UnsetChannelStats()
	}
	if info.DateCreated.IsZero() {
		info.DateCreated = NewDate(time.Now())
	}
	return info, info.Validate()
}

// Validate checks the Info invariants.
func (i Info) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return violation("info", "name", "is required")
	}
	if i.Version < 0 {
		return violation("info", "version", "must not be negative (got %d)", i.Version)
	}
	if i.Year < 0 {
		return violation("info", "year", "must not be negative (got %d)", i.Year)
	}
	for ch := range 3 {
		if mean := i.ChannelStats.Mean[ch]; mean != UnsetStat && (mean < 0 || mean > 1) {
			return violation("info", "channel_stats", "mean[%d] %.4f outside [0,1]", ch, mean)
		}
		if std := i.ChannelStats.Std[ch]; std != UnsetStat && std < 0 {
			return violation("info", "channel_stats", "std[%d] %.4f is negative", ch, std)
		}
	}
	return nil
}

// Category is one entry of the label taxonomy.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NewCategory validates and returns a Category.
func NewCategory(id int, name string) (Category, error) {
	c := Category{ID: id, Name: name}
	return c, c.Validate()
}

// Validate checks the Category invariants.
func (c Category) Validate() error {
	if c.ID < 0 {
		return violation("category", "id", "must not be negative (got %d)", c.ID)
	}
	if strings.TrimSpace(c.Name) == "" {
		return violation("category", "name", "is required")
	}
	return nil
}

// Image is one physical or cropped image.
type Image struct {
	ID             string     `json:"id"`
	FileName       string     `json:"file_name"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	Grayscale      *bool      `json:"grayscale,omitempty"`
	RelativeSize   *float64   `json:"relative_size,omitempty"`
	SourceFileName string     `json:"source_file_name,omitempty"`
	SeqID          string     `json:"seq_id,omitempty"`
	SeqNumFrames   *int       `json:"seq_num_frames,omitempty"`
	FrameNum       *int       `json:"frame_num,omitempty"`
	Location       string     `json:"location,omitempty"`
	PhotoType      string     `json:"photo_type,omitempty"`
	DateTime       *Timestamp `json:"datetime,omitempty"`
}

// NewImage validates and returns img. An empty SourceFileName defaults to
// FileName, the uncropped case.
func NewImage(img Image) (Image, error) {
	if img.SourceFileName == "" {
		img.SourceFileName = img.FileName
	}
	return img, img.Validate()
}

// Validate checks the Image invariants.
func (i Image) Validate() error {
	if err := validateIdentifier("image", "id", i.ID); err != nil {
		return err
	}
	if strings.TrimSpace(i.FileName) == "" {
		return violation("image", "file_name", "is required")
	}
	if i.Width < 0 || i.Height < 0 {
		return violation("image", "width", "dimensions must be positive (got %dx%d)", i.Width, i.Height)
	}
	if (i.Width == 0) != (i.Height == 0) {
		return violation("image", "width", "width and height must be set together (got %dx%d)", i.Width, i.Height)
	}
	if i.RelativeSize != nil && (*i.RelativeSize <= 0 || *i.RelativeSize > 1) {
		return violation("image", "relative_size", "must be in (0,1] (got %g)", *i.RelativeSize)
	}
	if i.SeqNumFrames != nil && *i.SeqNumFrames <= 0 {
		return violation("image", "seq_num_frames", "must be positive (got %d)", *i.SeqNumFrames)
	}
	if i.FrameNum != nil {
		if *i.FrameNum < 0 {
			return violation("image", "frame_num", "must not be negative (got %d)", *i.FrameNum)
		}
		if i.SeqNumFrames != nil && *i.FrameNum >= *i.SeqNumFrames {
			return violation("image", "frame_num", "%d outside sequence of %d frames", *i.FrameNum, *i.SeqNumFrames)
		}
	}
	return nil
}

// HasDimensions reports whether width and height were decoded.
func (i Image) HasDimensions() bool {
	return i.Width > 0 && i.Height > 0
}

// Detection is one annotation instance linking an Image to a Category.
type Detection struct {
	ID         string        `json:"id"`
	ImageID    string        `json:"image_id"`
	Kind       DetectionKind `json:"kind"`
	CategoryID int           `json:"category_id"`
	Confidence *float64      `json:"confidence,omitempty"`
}

// NewDetection validates and returns a Detection.
func NewDetection(d Detection) (Detection, error) {
	return d, d.Validate()
}

// Validate checks the Detection invariants. Referential integrity against
// Image and Category is enforced by the catalog and the store.
func (d Detection) Validate() error {
	if err := validateIdentifier("detection", "id", d.ID); err != nil {
		return err
	}
	if err := validateIdentifier("detection", "image_id", d.ImageID); err != nil {
		return err
	}
	if !d.Kind.Valid() {
		return violation("detection", "kind", "unknown code %d", uint8(d.Kind))
	}
	if d.CategoryID < 0 {
		return violation("detection", "category_id", "must not be negative (got %d)", d.CategoryID)
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
		return violation("detection", "confidence", "must be in [0,1] (got %g)", *d.Confidence)
	}
	return nil
}

// Oracle is the human decision recorded against a Detection. A nil Label
// means the reviewer looked at it but has no confident label yet.
type Oracle struct {
	DetectionID string `json:"detection_id"`
	Label       *int   `json:"label"`
}

// NewOracle validates and returns an Oracle.
func NewOracle(detectionID string, label *int) (Oracle, error) {
	o := Oracle{DetectionID: detectionID, Label: label}
	return o, o.Validate()
}

// Validate checks the Oracle invariants.
func (o Oracle) Validate() error {
	if err := validateIdentifier("oracle", "detection_id", o.DetectionID); err != nil {
		return err
	}
	if o.Label != nil && *o.Label < 0 {
		return violation("oracle", "label", "must not be negative (got %d)", *o.Label)
	}
	return nil
}

func validateIdentifier(entity, field, value string) error {
	if value == "" {
		return violation(entity, field, "is required")
	}
	if strings.TrimSpace(value) != value {
		return violation(entity, field, "has surrounding whitespace (%q)", value)
	}
	return nil
}
