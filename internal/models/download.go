package models

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ProgressFunc receives download progress. total is -1 when the server did
// not send a Content-Length.
type ProgressFunc func(label string, written, total int64)

// Provisioner downloads and installs models onto a filesystem.
type Provisioner struct {
	fs      afero.Fs
	client  *http.Client
	timeout time.Duration

	// Progress, if set, is called as the download advances.
	Progress ProgressFunc
}

// NewProvisioner returns a Provisioner writing to fs and fetching with client.
// A nil fs uses the OS filesystem and a nil client uses http.DefaultClient.
// A positive timeout bounds each download.
func NewProvisioner(fs afero.Fs, client *http.Client, timeout time.Duration) *Provisioner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Provisioner{fs: fs, client: client, timeout: timeout}
}

// Ready reports whether desc is already installed.
func (p *Provisioner) Ready(desc Descriptor) bool {
	return Ready(p.fs, desc)
}

// EnsureModel makes sure the model described by desc is installed. It is a
// no-op when the model is already present. Cancelling ctx aborts the download
// or extraction.
func (p *Provisioner) EnsureModel(ctx context.Context, desc Descriptor) error {
	if p.Ready(desc) {
		slog.Debug("[models] model already present", "dir", desc.Dir)
		return nil
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.fs.MkdirAll(desc.Dir, 0755); err != nil {
		return &ProvisionError{Kind: ErrIO, Op: "create model dir", Err: err}
	}

	slog.Info("[models] downloading model", "url", desc.URL, "dir", desc.Dir)
	start := time.Now()

	var err error
	switch desc.Format {
	case FormatFile:
		err = p.installFile(ctx, desc)
	default:
		err = p.installZip(ctx, desc)
	}
	if err != nil {
		return err
	}

	if miss := missing(p.fs, desc); len(miss) > 0 {
		return &ProvisionError{Kind: ErrIncomplete, Op: "missing " + strings.Join(miss, ", ")}
	}
	slog.Info("[models] model installed", "dir", desc.Dir, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// fetch streams url into w and returns the number of bytes written.
func (p *Provisioner) fetch(ctx context.Context, url, label string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &ProvisionError{Kind: ErrNetwork, Op: "build request", Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &ProvisionError{Kind: ErrNetwork, Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &ProvisionError{Kind: ErrNetwork, Op: fmt.Sprintf("download failed: HTTP %d", resp.StatusCode)}
	}

	pw := &progressWriter{
		writer: w,
		total:  resp.ContentLength,
		label:  label,
		report: p.Progress,
	}

	written, err := io.Copy(pw, resp.Body)
	if err != nil {
		if pw.werr != nil {
			return written, &ProvisionError{Kind: ErrIO, Op: "write download", Err: pw.werr}
		}
		return written, &ProvisionError{Kind: ErrNetwork, Op: "read body", Err: err}
	}
	return written, nil
}

// installFile downloads a single-file model to <Dir>/<Required[0]>.
// The data is written to a .tmp file first, then renamed (atomic).
func (p *Provisioner) installFile(ctx context.Context, desc Descriptor) error {
	if len(desc.Required) == 0 {
		return &ProvisionError{Kind: ErrIncomplete, Op: "no required artifact named"}
	}
	destPath := filepath.Join(desc.Dir, desc.Required[0])
	tmpPath := destPath + ".tmp"

	if err := p.fs.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return &ProvisionError{Kind: ErrIO, Op: "create model dir", Err: err}
	}
	f, err := p.fs.Create(tmpPath)
	if err != nil {
		return &ProvisionError{Kind: ErrIO, Op: "create temp file", Err: err}
	}

	_, err = p.fetch(ctx, desc.URL, filepath.Base(destPath), f)
	f.Close()
	if err != nil {
		p.fs.Remove(tmpPath)
		return err
	}

	if err := p.fs.Rename(tmpPath, destPath); err != nil {
		p.fs.Remove(tmpPath)
		return &ProvisionError{Kind: ErrIO, Op: "move model file", Err: err}
	}
	return nil
}

// installZip downloads an archive into a temp file beside the model and
// extracts it beneath Dir, stripping the ArchiveRoot folder.
func (p *Provisioner) installZip(ctx context.Context, desc Descriptor) error {
	tmp, err := afero.TempFile(p.fs, desc.Dir, ".download-*.zip")
	if err != nil {
		return &ProvisionError{Kind: ErrIO, Op: "create temp archive", Err: err}
	}
	defer func() {
		tmp.Close()
		p.fs.Remove(tmp.Name())
	}()

	size, err := p.fetch(ctx, desc.URL, path.Base(desc.URL), tmp)
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return &ProvisionError{Kind: ErrIO, Op: "open archive", Err: err}
	}
	return p.extract(ctx, zr, desc)
}

func (p *Provisioner) extract(ctx context.Context, zr *zip.Reader, desc Descriptor) error {
	root := filepath.Clean(desc.Dir)
	prefix := ""
	if desc.ArchiveRoot != "" {
		prefix = strings.TrimSuffix(desc.ArchiveRoot, "/") + "/"
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return &ProvisionError{Kind: ErrIO, Op: "extract archive", Err: err}
		}

		name := strings.TrimPrefix(f.Name, prefix)
		if name == "" {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(name))
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return &ProvisionError{Kind: ErrIO, Op: "extract archive", Err: fmt.Errorf("illegal entry path %q", f.Name)}
		}

		if f.FileInfo().IsDir() {
			if err := p.fs.MkdirAll(target, 0755); err != nil {
				return &ProvisionError{Kind: ErrIO, Op: "create dir", Err: err}
			}
			continue
		}
		if err := p.extractFile(f, target); err != nil {
			return &ProvisionError{Kind: ErrIO, Op: "extract " + name, Err: err}
		}
	}
	return nil
}

// extractFile writes f to target through a .tmp file, so a failed write
// never leaves a truncated artifact at target.
func (p *Provisioner) extractFile(f *zip.File, target string) error {
	if err := p.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	tmpPath := target + ".tmp"
	out, err := p.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	err = copyEntry(out, f)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		p.fs.Remove(tmpPath)
		return err
	}

	if err := p.fs.Rename(tmpPath, target); err != nil {
		p.fs.Remove(tmpPath)
		return err
	}
	return nil
}

func copyEntry(w io.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(w, rc)
	return err
}

// progressWriter wraps an io.Writer and reports download progress.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
	report  ProgressFunc
	werr    error
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if err != nil {
		pw.werr = err
	}
	if pw.report != nil {
		pw.report(pw.label, pw.written, pw.total)
	}
	return n, err
}
