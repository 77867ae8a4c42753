package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// ProgressFunc receives a fraction in [0,1], monotonically non-decreasing per
// download. Pure notification channel; no ordering guarantee beyond that.
type ProgressFunc func(fraction float64)

// FetchArtifact downloads one named artifact of a release into a staging file
// under destDir and returns its path. Every call is a full download; there is
// no resume. Errors propagate unmodified — retry policy lives in the injected
// transport.
func (c *Client) FetchArtifact(ctx context.Context, id ReleaseID, field, destDir string, onProgress ProgressFunc) (string, error) {
	url := fmt.Sprintf("%s/api/releases/%s/artifacts/%s", c.base, id, field)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", field, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("download %s: status=%d, body=%s", field, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(destDir, "artifact-"+field+"-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}

	src := io.Reader(resp.Body)
	if onProgress != nil && resp.ContentLength > 0 {
		src = &progressReader{r: resp.Body, total: resp.ContentLength, notify: onProgress}
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save %s: %w", field, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return tmp.Name(), nil
}

// progressReader reports download progress as a clamped fraction.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	notify ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		fraction := float64(p.read) / float64(p.total)
		if fraction > 1 {
			fraction = 1
		}
		p.notify(fraction)
	}
	return n, err
}
