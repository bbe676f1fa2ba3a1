package mapping

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(db, logger)
}

func TestAddAndLookup(t *testing.T) {
	s := testStore(t)

	if err := s.Add("我推的孩子", 386809); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	id, ok := s.Lookup("我推的孩子", "")
	if !ok || id != 386809 {
		t.Errorf("Lookup = %d %v, want 386809 true", id, ok)
	}

	// Falls back to the original title.
	id, ok = s.Lookup("unknown", "我推的孩子")
	if !ok || id != 386809 {
		t.Errorf("original-title lookup = %d %v, want 386809 true", id, ok)
	}

	if _, ok := s.Lookup("nothing", "here"); ok {
		t.Errorf("unmapped title should miss")
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	s := testStore(t)
	if err := s.Add("Oshi no Ko", 386809); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id, ok := s.Lookup("OSHI NO KO", ""); !ok || id != 386809 {
		t.Errorf("lookup should be case-insensitive, got %d %v", id, ok)
	}
}

func TestAddValidation(t *testing.T) {
	s := testStore(t)
	if err := s.Add("", 1); err == nil {
		t.Errorf("empty title must be rejected")
	}
	if err := s.Add("title", 0); err == nil {
		t.Errorf("non-positive subject must be rejected")
	}
}

func TestDeleteMissing(t *testing.T) {
	s := testStore(t)
	if err := s.Delete("never added"); err == nil {
		t.Errorf("deleting a missing mapping should error")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := testStore(t)
	in := map[string]int{
		"我推的孩子":  386809,
		"葬送的芙莉莲": 425909,
	}

	count, err := s.Import(in)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if count != 2 {
		t.Errorf("imported %d, want 2", count)
	}

	out, err := s.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(out) != 2 || out["我推的孩子"] != 386809 || out["葬送的芙莉莲"] != 425909 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
