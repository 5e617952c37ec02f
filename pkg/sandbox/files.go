package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/docker/docker/api/types/container"
)

// ReadFile returns the content of a file inside the sandbox.
func (s *Session) ReadFile(ctx context.Context, filePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	reader, _, err := s.cli.CopyFromContainer(ctx, s.containerID, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s from sandbox: %w", filePath, err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to unpack %s from sandbox: %w", filePath, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			if err != nil {
				return "", fmt.Errorf("failed to read %s from sandbox: %w", filePath, err)
			}
			return string(data), nil
		}
	}

	return "", fmt.Errorf("no regular file at %s in sandbox", filePath)
}

// WriteFile writes content to a file inside the sandbox, creating parent
// directories as needed.
func (s *Session) WriteFile(ctx context.Context, filePath, content string) error {
	dir := path.Dir(filePath)
	if res := s.Run(ctx, "mkdir -p "+quotePath(dir), RunOptions{Timeout: MetadataTimeout}); !res.OK() {
		return fmt.Errorf("failed to create directory %s in sandbox: %s", dir, res.Stderr)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: path.Base(filePath),
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to stage %s for sandbox: %w", filePath, err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to stage %s for sandbox: %w", filePath, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to stage %s for sandbox: %w", filePath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	if err := s.cli.CopyToContainer(ctx, s.containerID, dir, &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to write %s to sandbox: %w", filePath, err)
	}
	return nil
}
