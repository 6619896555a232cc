package metadata_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"trapcat/internal/metadata"
)

const surveyCSV = "Image Name,Date,Camera Trap Station Label,Species,Photo Type ,Seq,Frame\n" +
	"(annotation),,,,,,\n" +
	"img001.JPG,2014-03-01 10:00:00,ST01,Elephant,Animal,s1,0\n" +
	"img002.JPG,2014-03-01 10:00:05,ST01,,,s1,1\n" +
	"img001.JPG,2014-03-01 10:00:00,ST01,Zebra,Animal,,\n"

func TestReadCSVMapsColumns(t *testing.T) {
	cols := metadata.DefaultColumns()
	cols.SeqID = "Seq"
	cols.FrameNum = "Frame"

	rows, err := metadata.ReadCSV(strings.NewReader(surveyCSV), metadata.ReadOptions{Columns: cols, SkipRows: 1})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.Index != 0 || first.Filename != "img001.JPG" || first.Station != "ST01" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.Species == nil || *first.Species != "Elephant" {
		t.Fatalf("unexpected species: %v", first.Species)
	}
	if first.PhotoType == nil || *first.PhotoType != "Animal" {
		t.Fatalf("photo type not read through trailing-space header: %v", first.PhotoType)
	}
	if first.SeqID != "s1" || first.FrameNum == nil || *first.FrameNum != 0 {
		t.Fatalf("unexpected sequence fields: %+v", first)
	}

	blank := rows[1]
	if blank.Species != nil {
		t.Fatalf("expected blank species to be nil, got %q", *blank.Species)
	}
	if blank.PhotoType != nil {
		t.Fatalf("expected blank photo type to be nil")
	}
	if rows[2].Index != 2 || rows[2].FrameNum != nil {
		t.Fatalf("unexpected third row: %+v", rows[2])
	}
}

func TestReadCSVMissingFilenameColumn(t *testing.T) {
	_, err := metadata.ReadCSV(strings.NewReader("Name,Date\na,b\n"), metadata.ReadOptions{Columns: metadata.DefaultColumns()})
	if !errors.Is(err, metadata.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestReadCSVKeepsRowsWithBadNumbers(t *testing.T) {
	cols := metadata.Columns{Filename: "file", FrameNum: "frame", SeqNumFrames: "frames"}
	input := "file,frame,frames\na.JPG,1,3\nb.JPG,n/a,3\n"
	rows, err := metadata.ReadCSV(strings.NewReader(input), metadata.ReadOptions{Columns: cols})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Err() != nil || rows[0].FrameNum == nil || *rows[0].FrameNum != 1 {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	bad := rows[1]
	if bad.FrameNum != nil || bad.SeqNumFrames == nil || *bad.SeqNumFrames != 3 {
		t.Fatalf("unexpected second row %+v", bad)
	}
	if len(bad.Invalid) != 1 || bad.Invalid[0].Field != "frame number" || bad.Invalid[0].Value != "n/a" {
		t.Fatalf("unexpected invalid cells %+v", bad.Invalid)
	}
	var numErr *strconv.NumError
	if err := bad.Err(); !errors.As(err, &numErr) || !strings.Contains(err.Error(), "frame number") {
		t.Fatalf("expected wrapped parse error, got %v", err)
	}
}

func TestReadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := metadata.ReadFile(path, metadata.ReadOptions{Columns: metadata.DefaultColumns()})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}
