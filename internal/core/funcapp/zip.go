package funcapp

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"funcapp-deploy/internal/azcli"
)

// ZipManifest lists the project files packaged by ZipApp, relative to the
// source directory. Each is stored in the archive under its base name.
var ZipManifest = []string{
	"host.json",
	"requirements.txt",
	"function_app.py",
}

// ZipApp deploys a zip of the project files with az config-zip and a remote
// build. The zip is a temporary file owned by the app.
type ZipApp struct {
	*Base
}

// NewZipApp packages the manifest files found in sourceDir into a fresh
// temporary zip.
func NewZipApp(name, resourceGroup, sourceDir string, runner azcli.Runner, opts ...Option) (*ZipApp, error) {
	f, err := os.CreateTemp("", "funcapp-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temporary zip: %w", err)
	}
	path := f.Name()

	werr := writeZip(f, sourceDir, ZipManifest)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, werr
	}

	app := &ZipApp{Base: NewBase(name, resourceGroup, path, true, runner, opts...)}
	app.lg.Debug().Str("artifact", path).Msg("packaged function app")
	return app, nil
}

func writeZip(w io.Writer, sourceDir string, files []string) error {
	zw := zip.NewWriter(w)
	for _, rel := range files {
		if err := addFile(zw, filepath.Join(sourceDir, rel)); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("zip copy %s: %w", hdr.Name, err)
	}
	return nil
}

// Deploy uploads the zip. Failures from az are returned as is.
func (a *ZipApp) Deploy(ctx context.Context) error {
	argv := a.az(
		"functionapp", "deployment", "source", "config-zip",
		"--resource-group", a.resourceGroup,
		"--name", a.name,
		"--src", a.artifactPath,
		"--build-remote", "true",
	)
	a.lg.Info().Msg("deploying function app code")
	if err := azcli.Discard(ctx, a.runner, argv...); err != nil {
		return err
	}
	a.lg.Info().Msg("function app code deployed")
	return nil
}
