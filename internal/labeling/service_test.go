package labeling_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"trapcat/internal/config"
	"trapcat/internal/labeling"
	"trapcat/internal/schema"
	"trapcat/internal/store"
	"trapcat/internal/testsupport"
)

func newService(t *testing.T, backend string) (*labeling.Service, store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStorage(backend))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	for id, name := range []string{"Elephant", "empty"} {
		if err := st.PutCategory(ctx, schema.Category{ID: id, Name: name}); err != nil {
			t.Fatalf("PutCategory failed: %v", err)
		}
	}
	n := 0
	svc := labeling.NewService(st, nil)
	svc.NewID = func() string {
		n++
		return fmt.Sprintf("proposal-%d", n)
	}
	return svc, st
}

// failingStore rejects every batch.
type failingStore struct {
	store.Store
}

var errBatchRejected = errors.New("batch rejected")

func (failingStore) Apply(context.Context, store.Changes) error {
	return errBatchRejected
}

func forEachBackend(t *testing.T, fn func(t *testing.T, svc *labeling.Service, st store.Store)) {
	for _, backend := range []string{config.StorageMemory, config.StorageJSON, config.StorageSQLite} {
		t.Run(backend, func(t *testing.T) {
			svc, st := newService(t, backend)
			fn(t, svc, st)
		})
	}
}

func TestSubmitLabelsActiveDetection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		if err := st.PutCategory(ctx, schema.Category{ID: 2, Name: "Lion"}); err != nil {
			t.Fatalf("PutCategory failed: %v", err)
		}
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ActiveDetection, 0)

		det, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: "Lion"})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if det.Kind != schema.UserDetection || det.CategoryID != 2 {
			t.Fatalf("unexpected detection after review: %+v", det)
		}
		stored, err := st.Detection(ctx, "det-1")
		if err != nil {
			t.Fatalf("Detection failed: %v", err)
		}
		if stored.Kind != schema.UserDetection || stored.CategoryID != 2 {
			t.Fatalf("store not updated: %+v", stored)
		}
		oracle, err := st.OracleByDetection(ctx, "det-1")
		if err != nil {
			t.Fatalf("OracleByDetection failed: %v", err)
		}
		if oracle.Label == nil || *oracle.Label != 2 {
			t.Fatalf("unexpected oracle: %+v", oracle)
		}

		// A second review updates the same oracle.
		if _, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: "Elephant"}); err != nil {
			t.Fatalf("second Submit failed: %v", err)
		}
		snap, err := st.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap.Oracles) != 1 || *snap.Oracles[0].Label != 0 {
			t.Fatalf("expected exactly one oracle labelled 0, got %+v", snap.Oracles)
		}
	})
}

func TestSubmitAddsUnknownCategory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ActiveDetection, 0)

		det, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: "Lion"})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if det.CategoryID != 2 {
			t.Fatalf("new category should take the next id, got %d", det.CategoryID)
		}
		cat, err := st.CategoryByName(ctx, "Lion")
		if err != nil || cat.ID != 2 {
			t.Fatalf("CategoryByName = %+v, %v", cat, err)
		}
	})
}

func TestSubmitUnknownKeepsDetectionActive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ActiveDetection, 0)

		det, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: "Unknown"})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if det.Kind != schema.ActiveDetection || det.CategoryID != 0 {
			t.Fatalf("unknown label must not change the detection: %+v", det)
		}
		oracle, err := st.OracleByDetection(ctx, "det-1")
		if err != nil {
			t.Fatalf("OracleByDetection failed: %v", err)
		}
		if oracle.Label != nil {
			t.Fatalf("unknown label should store a nil label, got %d", *oracle.Label)
		}

		if _, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: "Elephant"}); err != nil {
			t.Fatalf("follow-up Submit failed: %v", err)
		}
		snap, _ := st.Snapshot(ctx)
		if len(snap.Oracles) != 1 || snap.Oracles[0].Label == nil {
			t.Fatalf("follow-up review should replace the oracle: %+v", snap.Oracles)
		}
	})
}

func TestSubmitRejectsModelDetection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ModelDetection, 0)

		for _, label := range []string{"Elephant", labeling.UnknownLabel} {
			if _, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: label}); !errors.Is(err, schema.ErrInvalidTransition) {
				t.Fatalf("Submit(%q) expected ErrInvalidTransition, got %v", label, err)
			}
		}
		if _, err := st.OracleByDetection(ctx, "det-1"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("no oracle may be written, got %v", err)
		}
		det, _ := st.Detection(ctx, "det-1")
		if det.Kind != schema.ModelDetection {
			t.Fatalf("detection kind changed: %s", det.Kind)
		}
	})
}

func TestSubmitUnknownDetection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		_, err := svc.Submit(context.Background(), labeling.Review{DetectionID: "nope", Label: "Elephant"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPromote(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ModelDetection, 0)
		testsupport.SeedImage(t, st, "img002", "det-2", schema.ActiveDetection, 1)
		testsupport.SeedImage(t, st, "img003", "det-3", schema.UserDetection, 1)
		testsupport.SeedImage(t, st, "img004", "det-4", schema.ModelDetection, 1)

		if _, err := svc.Promote(ctx, []string{"det-1", "det-3"}); !errors.Is(err, schema.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for a user detection, got %v", err)
		}
		if det, _ := st.Detection(ctx, "det-1"); det.Kind != schema.ModelDetection {
			t.Fatal("a rejected selection must not promote anything")
		}
		if _, err := svc.Promote(ctx, []string{"det-1", "missing"}); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		n, err := svc.Promote(ctx, []string{"det-1", "det-2", "det-1"})
		if err != nil {
			t.Fatalf("Promote failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 promotion, got %d", n)
		}
		pending, err := svc.Pending(ctx)
		if err != nil {
			t.Fatalf("Pending failed: %v", err)
		}
		if len(pending) != 2 || pending[0].ID != "det-1" || pending[1].ID != "det-2" {
			t.Fatalf("unexpected pending detections: %+v", pending)
		}
	})
}

func TestImportProposals(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ModelDetection, 0)
		conf := 0.82

		created, err := svc.ImportProposals(ctx, []labeling.Proposal{
			{ImageID: "img001", CategoryName: "Buffalo", Confidence: &conf},
			{ImageID: "img001", CategoryName: "Elephant"},
			{ImageID: "img001", CategoryName: ""},
		})
		if err != nil {
			t.Fatalf("ImportProposals failed: %v", err)
		}
		if len(created) != 3 {
			t.Fatalf("expected 3 detections, got %d", len(created))
		}
		if created[0].CategoryID != 2 || created[1].CategoryID != 0 || created[2].CategoryID != 1 {
			t.Fatalf("unexpected categories: %+v", created)
		}
		if created[0].ID != "proposal-1" || created[0].Kind != schema.ModelDetection || *created[0].Confidence != conf {
			t.Fatalf("unexpected first detection: %+v", created[0])
		}
		dets, err := st.DetectionsByImage(ctx, "img001")
		if err != nil {
			t.Fatalf("DetectionsByImage failed: %v", err)
		}
		if len(dets) != 4 {
			t.Fatalf("expected 4 detections on img001, got %d", len(dets))
		}
	})
}

func TestImportProposalsValidatesBeforeWriting(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ModelDetection, 0)
		tooHigh := 1.5

		_, err := svc.ImportProposals(ctx, []labeling.Proposal{
			{ImageID: "img001", CategoryName: "Buffalo"},
			{ImageID: "ghost", CategoryName: "Elephant"},
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		_, err = svc.ImportProposals(ctx, []labeling.Proposal{{ImageID: "img001", CategoryName: "Buffalo", Confidence: &tooHigh}})
		if !errors.Is(err, schema.ErrSchemaViolation) {
			t.Fatalf("expected ErrSchemaViolation, got %v", err)
		}
		if _, err := st.CategoryByName(ctx, "Buffalo"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("rejected proposals must not add categories, got %v", err)
		}
	})
}

func TestImportProposalsCommitsOneBatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ModelDetection, 0)
		svc.NewID = func() string { return "proposal-dup" }

		_, err := svc.ImportProposals(ctx, []labeling.Proposal{
			{ImageID: "img001", CategoryName: "Buffalo"},
			{ImageID: "img001", CategoryName: "Zebra"},
		})
		if !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		snap, err := st.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap.Detections) != 1 || len(snap.Categories) != 2 {
			t.Fatalf("failed import must write nothing: %d detections, %d categories", len(snap.Detections), len(snap.Categories))
		}

		n := 0
		svc.NewID = func() string {
			n++
			return fmt.Sprintf("proposal-%d", n)
		}
		created, err := svc.ImportProposals(ctx, []labeling.Proposal{
			{ImageID: "img001", CategoryName: "Buffalo"},
			{ImageID: "img001", CategoryName: "Zebra"},
			{ImageID: "img001", CategoryName: "Buffalo"},
		})
		if err != nil {
			t.Fatalf("ImportProposals failed: %v", err)
		}
		if created[0].CategoryID != 2 || created[1].CategoryID != 3 || created[2].CategoryID != 2 {
			t.Fatalf("new categories should take consecutive ids: %+v", created)
		}
	})
}

func TestPromoteManyDetections(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		var ids []string
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("det-%03d", i)
			testsupport.SeedImage(t, st, fmt.Sprintf("img%03d", i), id, schema.ModelDetection, 0)
			ids = append(ids, id)
		}
		n, err := svc.Promote(ctx, ids)
		if err != nil {
			t.Fatalf("Promote failed: %v", err)
		}
		if n != len(ids) {
			t.Fatalf("expected %d promotions, got %d", len(ids), n)
		}
		pending, err := svc.Pending(ctx)
		if err != nil {
			t.Fatalf("Pending failed: %v", err)
		}
		if len(pending) != len(ids) {
			t.Fatalf("expected %d pending detections, got %d", len(ids), len(pending))
		}
	})
}

func TestFailedBatchLeavesStoreUnchanged(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *labeling.Service, st store.Store) {
		ctx := context.Background()
		testsupport.SeedImage(t, st, "img001", "det-1", schema.ActiveDetection, 0)
		testsupport.SeedImage(t, st, "img002", "det-2", schema.ModelDetection, 0)
		svc.Store = failingStore{Store: st}

		if _, err := svc.Submit(ctx, labeling.Review{DetectionID: "det-1", Label: "Lion"}); !errors.Is(err, errBatchRejected) {
			t.Fatalf("expected the batch error, got %v", err)
		}
		if _, err := st.CategoryByName(ctx, "Lion"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("a failed review must not add its category, got %v", err)
		}
		if det, _ := st.Detection(ctx, "det-1"); det.Kind != schema.ActiveDetection {
			t.Fatalf("a failed review must not change the detection: %+v", det)
		}

		n, err := svc.Promote(ctx, []string{"det-2"})
		if !errors.Is(err, errBatchRejected) || n != 0 {
			t.Fatalf("expected no promotions and the batch error, got %d, %v", n, err)
		}
		if det, _ := st.Detection(ctx, "det-2"); det.Kind != schema.ModelDetection {
			t.Fatalf("a failed promotion must not change the detection: %+v", det)
		}
	})
}
