package models

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

const testRoot = "vosk-model-small-en-us-0.15"

var testRequired = []string{"am/final.mdl", "conf/mfcc.conf", "graph/HCLr.fst"}

// buildZip returns an archive holding the given entries in order.
func buildZip(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func modelZip(t *testing.T) []byte {
	order := []string{
		testRoot + "/",
		testRoot + "/am/final.mdl",
		testRoot + "/conf/mfcc.conf",
		testRoot + "/graph/HCLr.fst",
		testRoot + "/README",
	}
	entries := map[string]string{
		testRoot + "/am/final.mdl":   "acoustic",
		testRoot + "/conf/mfcc.conf": "--sample-frequency=16000",
		testRoot + "/graph/HCLr.fst": "graph",
		testRoot + "/README":         "small english model",
	}
	return buildZip(t, entries, order)
}

// serve starts a server returning body and counts requests.
func serve(t *testing.T, status int, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testDescriptor(url string) Descriptor {
	return Descriptor{
		Dir:         "/models/" + testRoot,
		URL:         url,
		ArchiveRoot: testRoot,
		Required:    testRequired,
		Format:      FormatZip,
	}
}

func TestEnsureModelAlreadyPresent(t *testing.T) {
	fs := afero.NewMemMapFs()
	srv, hits := serve(t, http.StatusOK, modelZip(t))
	desc := testDescriptor(srv.URL)

	for _, rel := range testRequired {
		if err := afero.WriteFile(fs, filepath.Join(desc.Dir, rel), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	p := NewProvisioner(fs, srv.Client(), 0)
	if err := p.EnsureModel(context.Background(), desc); err != nil {
		t.Fatalf("EnsureModel() error = %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server hit %d times, want 0 for an installed model", n)
	}
}

func TestEnsureModelDownloadsAndStripsRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	srv, hits := serve(t, http.StatusOK, modelZip(t))
	desc := testDescriptor(srv.URL + "/model.zip")

	var lastWritten int64
	p := NewProvisioner(fs, srv.Client(), time.Minute)
	p.Progress = func(label string, written, total int64) {
		lastWritten = written
	}

	if err := p.EnsureModel(context.Background(), desc); err != nil {
		t.Fatalf("EnsureModel() error = %v", err)
	}
	if !p.Ready(desc) {
		t.Fatal("model should be ready after EnsureModel")
	}

	got, err := afero.ReadFile(fs, filepath.Join(desc.Dir, "conf", "mfcc.conf"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "--sample-frequency=16000" {
		t.Errorf("mfcc.conf = %q", got)
	}
	if ok, _ := afero.Exists(fs, filepath.Join(desc.Dir, testRoot)); ok {
		t.Error("archive root folder should be stripped")
	}

	// Only the model remains: the temp archive is cleaned up.
	entries, err := afero.ReadDir(fs, desc.Dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"README", "am", "conf", "graph"}, names); diff != "" {
		t.Errorf("model dir mismatch (-want +got):\n%s", diff)
	}

	if lastWritten == 0 {
		t.Error("progress callback was never called")
	}

	// Second call is a no-op.
	if err := p.EnsureModel(context.Background(), desc); err != nil {
		t.Fatalf("second EnsureModel() error = %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestEnsureModelIncomplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := buildZip(t, map[string]string{testRoot + "/am/final.mdl": "acoustic"}, []string{testRoot + "/am/final.mdl"})
	srv, _ := serve(t, http.StatusOK, body)

	p := NewProvisioner(fs, srv.Client(), 0)
	desc := testDescriptor(srv.URL)
	err := p.EnsureModel(context.Background(), desc)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("EnsureModel() error = %v, want ErrIncomplete", err)
	}
	if Ready(fs, desc) {
		t.Error("incomplete model must not be ready")
	}
}

// shortWriteFs fails writes to files whose name contains match after half of
// the data, once.
type shortWriteFs struct {
	afero.Fs
	match  string
	failed atomic.Bool
}

func (f *shortWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || !strings.Contains(name, f.match) || f.failed.Load() {
		return file, err
	}
	return &shortWriteFile{File: file, fs: f}, nil
}

type shortWriteFile struct {
	afero.File
	fs *shortWriteFs
}

func (f *shortWriteFile) Write(p []byte) (int, error) {
	if f.fs.failed.Swap(true) {
		return f.File.Write(p)
	}
	n, _ := f.File.Write(p[:len(p)/2])
	return n, syscall.ENOSPC
}

func TestEnsureModelFailedWriteLeavesNothingReady(t *testing.T) {
	fs := &shortWriteFs{Fs: afero.NewMemMapFs(), match: "HCLr.fst"}
	srv, hits := serve(t, http.StatusOK, modelZip(t))
	desc := testDescriptor(srv.URL)
	p := NewProvisioner(fs, srv.Client(), 0)

	err := p.EnsureModel(context.Background(), desc)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("EnsureModel() error = %v, want ErrIO", err)
	}
	if Ready(fs, desc) {
		t.Fatal("model with a truncated artifact must not be ready")
	}
	target := filepath.Join(desc.Dir, "graph", "HCLr.fst")
	for _, name := range []string{target, target + ".tmp"} {
		if ok, _ := afero.Exists(fs, name); ok {
			t.Errorf("%s left on disk after failed write", name)
		}
	}

	// A retry downloads again and installs the full artifact.
	if err := p.EnsureModel(context.Background(), desc); err != nil {
		t.Fatalf("retry EnsureModel() error = %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
	got, err := afero.ReadFile(fs, target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "graph" {
		t.Errorf("HCLr.fst = %q, want %q", got, "graph")
	}
}

func TestEnsureModelHTTPError(t *testing.T) {
	fs := afero.NewMemMapFs()
	srv, _ := serve(t, http.StatusInternalServerError, nil)

	p := NewProvisioner(fs, srv.Client(), 0)
	err := p.EnsureModel(context.Background(), testDescriptor(srv.URL))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("EnsureModel() error = %v, want ErrNetwork", err)
	}

	var pe *ProvisionError
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not a *ProvisionError", err)
	}
}

func TestEnsureModelUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProvisioner(afero.NewMemMapFs(), nil, 0)
	err := p.EnsureModel(context.Background(), testDescriptor(url))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("EnsureModel() error = %v, want ErrNetwork", err)
	}
}

func TestEnsureModelRejectsEscapingEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := buildZip(t, map[string]string{"../evil.sh": "rm -rf"}, []string{"../evil.sh"})
	srv, _ := serve(t, http.StatusOK, body)
	desc := testDescriptor(srv.URL)

	p := NewProvisioner(fs, srv.Client(), 0)
	err := p.EnsureModel(context.Background(), desc)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("EnsureModel() error = %v, want ErrIO", err)
	}
	if ok, _ := afero.Exists(fs, "/models/evil.sh"); ok {
		t.Error("entry outside the model dir was written")
	}
}

func TestEnsureModelCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("PK"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewProvisioner(afero.NewMemMapFs(), srv.Client(), 0)

	errCh := make(chan error, 1)
	go func() { errCh <- p.EnsureModel(ctx, testDescriptor(srv.URL)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNetwork) {
			t.Errorf("EnsureModel() error = %v, want ErrNetwork", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EnsureModel did not return after cancel")
	}
}

func TestEnsureModelSingleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	srv, _ := serve(t, http.StatusOK, []byte("ggml-weights"))
	desc := Descriptor{
		Dir:      "/models/whisper",
		URL:      srv.URL + "/ggml-base.en.bin",
		Required: []string{"ggml-base.en.bin"},
		Format:   FormatFile,
	}

	p := NewProvisioner(fs, srv.Client(), 0)
	if err := p.EnsureModel(context.Background(), desc); err != nil {
		t.Fatalf("EnsureModel() error = %v", err)
	}

	got, err := afero.ReadFile(fs, "/models/whisper/ggml-base.en.bin")
	if err != nil {
		t.Fatalf("reading model: %v", err)
	}
	if string(got) != "ggml-weights" {
		t.Errorf("model content = %q", got)
	}
	if ok, _ := afero.Exists(fs, "/models/whisper/ggml-base.en.bin.tmp"); ok {
		t.Error("temp file should be renamed away")
	}
}

func TestReady(t *testing.T) {
	fs := afero.NewMemMapFs()
	desc := testDescriptor("")

	if Ready(fs, desc) {
		t.Error("Ready() = true for missing dir")
	}
	if err := fs.MkdirAll(desc.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	if Ready(fs, desc) {
		t.Error("Ready() = true for empty dir")
	}

	want := []string{"conf/mfcc.conf", "graph/HCLr.fst"}
	afero.WriteFile(fs, filepath.Join(desc.Dir, "am/final.mdl"), []byte("x"), 0644)
	if diff := cmp.Diff(want, missing(fs, desc)); diff != "" {
		t.Errorf("missing() mismatch (-want +got):\n%s", diff)
	}
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	var calls int
	pw := &progressWriter{
		writer: &buf,
		total:  100,
		label:  "test",
		report: func(label string, written, total int64) {
			calls++
			if label != "test" || total != 100 {
				t.Errorf("report(%q, %d, %d)", label, written, total)
			}
		},
	}

	data := make([]byte, 50)
	n, err := pw.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 50 {
		t.Errorf("Write() n = %d, want 50", n)
	}
	if pw.written != 50 {
		t.Errorf("written = %d, want 50", pw.written)
	}
	if calls != 1 {
		t.Errorf("report called %d times, want 1", calls)
	}
}
