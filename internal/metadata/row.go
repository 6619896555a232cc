package metadata

import (
	"errors"
	"fmt"
)

// Row is one metadata record. Index is the zero-based position among the data
// rows that survived SkipRows, which is the order used for first-row-wins.
type Row struct {
	Index        int
	Line         int
	Filename     string
	Date         string
	Station      string
	Species      *string
	PhotoType    *string
	SeqID        string
	FrameNum     *int
	SeqNumFrames *int
	// Invalid lists cells that could not be parsed. The field they feed is
	// left unset; callers decide what a bad cell costs.
	Invalid []FieldError
}

// Err joins the row's field errors, or returns nil.
func (r Row) Err() error {
	if len(r.Invalid) == 0 {
		return nil
	}
	errs := make([]error, len(r.Invalid))
	for i := range r.Invalid {
		errs[i] = &r.Invalid[i]
	}
	return errors.Join(errs...)
}

// FieldError is one unparseable cell.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Columns names the header cells that feed each Row field. Empty optional
// names disable the field.
type Columns struct {
	Filename     string
	Date         string
	Station      string
	Species      string
	PhotoType    string
	SeqID        string
	FrameNum     string
	SeqNumFrames string
}

// DefaultColumns mirrors the Save the Elephants survey layout.
func DefaultColumns() Columns {
	return Columns{
		Filename:  "Image Name",
		Date:      "Date",
		Station:   "Camera Trap Station Label",
		Species:   "Species",
		PhotoType: "Photo Type",
	}
}
