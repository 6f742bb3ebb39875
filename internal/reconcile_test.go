package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestRun(t *testing.T, exif *fakeExif) (*DateRun, *RunSession) {
	t.Helper()
	session, err := NewRunSession(t.TempDir(), "test", "input")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { session.Close() })
	ff := &fakeFFmpeg{}
	logger, _ := observedLogger()
	return NewDateRun(testConfig(), exif, ff, ff, session, logger), session
}

func TestCopyWithMetadata(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(src, "a.jpg"), "pixels")
	writeFile(t, filepath.Join(src, "a.jpg.supplemental-metadata.json"), sidecarDoc)
	writeFile(t, filepath.Join(src, "b.jpg"), "exif=2019:05:01 12:00:00")
	writeFile(t, filepath.Join(src, "IMG-20230615-WA0003.jpg"), "pixels")

	entries := []PathEntry{
		{Name: "a.jpg", Path: filepath.Join(src, "a.jpg")},
		{Name: "b.jpg", Path: filepath.Join(src, "b.jpg")},
		{Name: "IMG-20230615-WA0003.jpg", Path: filepath.Join(src, "IMG-20230615-WA0003.jpg")},
	}

	exif := &fakeExif{}
	run, session := newTestRun(t, exif)
	if err := run.CopyWithMetadata(context.Background(), entries, out, true); err != nil {
		t.Fatalf("CopyWithMetadata failed: %v", err)
	}
	stats := run.Finish()

	if got := readFile(t, filepath.Join(out, "a.jpg")); got != "exif=2023:06:15 16:30:22" {
		t.Errorf("Copy of a.jpg not stamped from sidecar: %q", got)
	}
	if got := readFile(t, filepath.Join(out, "b.jpg")); got != "exif=2019:05:01 12:00:00" {
		t.Errorf("Copy of b.jpg changed: %q", got)
	}
	if got := readFile(t, filepath.Join(out, "IMG-20230615-WA0003.jpg")); got != "exif=2023:06:15 00:00:00" {
		t.Errorf("Copy not stamped from file name: %q", got)
	}
	if readFile(t, filepath.Join(src, "a.jpg")) != "pixels" {
		t.Error("Original was modified")
	}
	if stats.Updated != 2 || stats.Unchanged != 1 || stats.Errors != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	events := readManifest(t, session)
	if events[0].Event != "session_start" || events[0].TotalFiles != 3 {
		t.Errorf("Unexpected first event %+v", events[0])
	}
	if events[1].Dest != filepath.Join(out, "a.jpg") {
		t.Errorf("Expected dest recorded, got %+v", events[1])
	}
}

func TestCopyWithMetadata_NoFallback(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(src, "IMG-20230615-WA0003.jpg"), "pixels")

	run, _ := newTestRun(t, &fakeExif{})
	entries := []PathEntry{{Name: "IMG-20230615-WA0003.jpg", Path: filepath.Join(src, "IMG-20230615-WA0003.jpg")}}
	if err := run.CopyWithMetadata(context.Background(), entries, out, false); err != nil {
		t.Fatal(err)
	}
	if stats := run.Finish(); stats.Unresolved != 1 {
		t.Errorf("Expected unresolved without fallback, got %+v", stats)
	}
	if readFile(t, filepath.Join(out, "IMG-20230615-WA0003.jpg")) != "pixels" {
		t.Error("Copy should be left without capture time")
	}
}

func TestCopyWithMetadata_CodecErrorContinues(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a.jpg", "c.jpg"} {
		writeFile(t, filepath.Join(src, name), "pixels")
		writeFile(t, filepath.Join(src, name+".json"), sidecarDoc)
	}

	exif := &fakeExif{writeErr: map[string]error{"a.jpg": errors.New("exiftool: write failed")}}
	run, session := newTestRun(t, exif)
	entries := []PathEntry{
		{Name: "a.jpg", Path: filepath.Join(src, "a.jpg")},
		{Name: "c.jpg", Path: filepath.Join(src, "c.jpg")},
	}
	if err := run.CopyWithMetadata(context.Background(), entries, out, false); err != nil {
		t.Fatalf("Expected codec failure to be recovered, got %v", err)
	}
	stats := run.Finish()
	if stats.Errors != 1 || stats.Updated != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if run.Stats.ByCategory[ErrorCategoryCodec] != 1 {
		t.Errorf("Expected one codec error, got %v", run.Stats.ByCategory)
	}

	var sawError bool
	for _, ev := range readManifest(t, session) {
		if ev.Event == "error" && ev.File == filepath.Join(out, "a.jpg") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("Expected the failed file in the manifest")
	}
}

func TestCopyWithMetadata_AbortsOnAmbiguity(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(src, "a.jpg"), "pixels")
	writeFile(t, filepath.Join(src, "a.jpg.json"), sidecarDoc)
	writeFile(t, filepath.Join(src, "a.jpg(1).json"), sidecarDoc)
	writeFile(t, filepath.Join(src, "b.jpg"), "pixels")

	run, _ := newTestRun(t, &fakeExif{})
	entries := []PathEntry{
		{Name: "a.jpg", Path: filepath.Join(src, "a.jpg")},
		{Name: "b.jpg", Path: filepath.Join(src, "b.jpg")},
	}
	err := run.CopyWithMetadata(context.Background(), entries, out, false)
	if !errors.Is(err, ErrAmbiguity) {
		t.Fatalf("Expected ambiguity error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "b.jpg")); !os.IsNotExist(err) {
		t.Error("Run continued after ambiguity")
	}
	if abort, _ := run.Stats.ShouldAbort(); !abort {
		t.Error("Expected stats to require abort")
	}
}

func TestCopyWithMetadata_CopyFailureStopsRegardlessOfName(t *testing.T) {
	for _, outName := range []string{"plain-out", "exif-out", "ffmpeg-out"} {
		t.Run(outName, func(t *testing.T) {
			src := t.TempDir()
			writeFile(t, filepath.Join(src, "a.jpg"), "pixels")
			writeFile(t, filepath.Join(src, "b.jpg"), "pixels")
			// A regular file where the output folder should be.
			out := filepath.Join(t.TempDir(), outName)
			writeFile(t, out, "not a folder")

			exif := &fakeExif{}
			run, session := newTestRun(t, exif)
			entries := []PathEntry{
				{Name: "a.jpg", Path: filepath.Join(src, "a.jpg")},
				{Name: "b.jpg", Path: filepath.Join(src, "b.jpg")},
			}
			err := run.CopyWithMetadata(context.Background(), entries, out, false)
			if !errors.Is(err, ErrCopy) {
				t.Fatalf("Expected copy error, got %v", err)
			}
			if errors.Is(err, ErrCodec) {
				t.Errorf("Copy failure must not be a codec error")
			}
			if run.Stats.ByCategory[ErrorCategoryCopy] != 1 || run.Stats.Total != 1 {
				t.Errorf("Expected a single copy error, got %v", run.Stats.ByCategory)
			}
			if len(exif.writes) != 0 {
				t.Errorf("Batch continued after failed copy: %v", exif.writes)
			}

			stats := run.Finish()
			if stats.Errors != 1 || stats.TotalScanned != 1 {
				t.Errorf("Expected only the failed copy in the manifest, got %+v", stats)
			}
			events := readManifest(t, session)
			if ev := events[1]; ev.ErrorCategory != string(ErrorCategoryCopy) || ev.Dest != filepath.Join(out, "a.jpg") {
				t.Errorf("Unexpected error event %+v", ev)
			}
		})
	}
}

func TestCopyWithMetadata_MissingOriginal(t *testing.T) {
	run, _ := newTestRun(t, &fakeExif{})
	entries := []PathEntry{{Name: "gone.jpg", Path: filepath.Join(t.TempDir(), "gone.jpg")}}
	err := run.CopyWithMetadata(context.Background(), entries, t.TempDir(), false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestFixFromFilenames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "IMG-20230615-WA0003.jpg"), "pixels")
	writeFile(t, filepath.Join(dir, "IMG-20230616-WA0001.jpg"), "exif=2023:06:16 21:10:00")
	writeFile(t, filepath.Join(dir, "IMG-20230617-WA0002.jpg"), "exif=2023:07:01 09:00:00")
	writeFile(t, filepath.Join(dir, "DSC_0001.jpg"), "pixels")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	pattern, err := LookupPattern(SourceWhatsApp, KindImage)
	if err != nil {
		t.Fatal(err)
	}
	exif := &fakeExif{}
	session, err := NewRunSession(t.TempDir(), "dates fix", dir)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	logger, logs := observedLogger()
	ff := &fakeFFmpeg{}
	run := NewDateRun(testConfig(), exif, ff, ff, session, logger)

	if err := run.FixFromFilenames(context.Background(), dir, pattern); err != nil {
		t.Fatalf("FixFromFilenames failed: %v", err)
	}
	stats := run.Finish()

	if got := readFile(t, filepath.Join(dir, "IMG-20230615-WA0003.jpg")); got != "exif=2023:06:15 00:00:00" {
		t.Errorf("Expected midnight capture time, got %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "IMG-20230617-WA0002.jpg")); got != "exif=2023:07:01 09:00:00" {
		t.Errorf("Conflicting capture time overwritten: %q", got)
	}
	if len(exif.writes) != 1 {
		t.Errorf("Expected one write, got %v", exif.writes)
	}
	expected := RunStats{TotalScanned: 3, Updated: 1, Unchanged: 1, Conflicts: 1}
	if stats != expected {
		t.Errorf("Expected %+v, got %+v", expected, stats)
	}
	if logs.FilterMessage("Filename does not follow pattern").Len() != 1 {
		t.Error("Expected DSC_0001.jpg to be reported")
	}
	if logs.FilterMessage("Skipping non-file").Len() != 1 {
		t.Error("Expected the subfolder to be skipped")
	}
}

func TestFixFromFilenames_MissingFolder(t *testing.T) {
	run, _ := newTestRun(t, &fakeExif{})
	pattern, _ := LookupPattern(SourceTelegram, KindImage)
	if err := run.FixFromFilenames(context.Background(), filepath.Join(t.TempDir(), "nope"), pattern); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestCheckMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "pixels")
	writeFile(t, filepath.Join(dir, "2020", "b.jpg"), "exif=2020:01:01 10:00:00")
	writeFile(t, filepath.Join(dir, "2020", "c.png"), "exif=")
	writeFile(t, filepath.Join(dir, "2020", "c.png.json"), "{}")
	writeFile(t, filepath.Join(dir, "d.jpg"), "exif=not a date")

	logger, logs := observedLogger()
	ff := &fakeFFmpeg{}
	run := NewDateRun(testConfig(), &fakeExif{}, ff, ff, nil, logger)

	missing, err := run.CheckMissing(context.Background(), dir)
	if err != nil {
		t.Fatalf("CheckMissing failed: %v", err)
	}
	want := []string{filepath.Join(dir, "2020", "c.png"), filepath.Join(dir, "a.jpg")}
	if len(missing) != len(want) || missing[0] != want[0] || missing[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, missing)
	}
	if logs.FilterMessage("Missing datetime metadata for image").Len() != 2 {
		t.Error("Expected one log entry per missing image")
	}
}
