package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
)

func (c *Client) uploadDocument(ctx context.Context, scenarioID string, file ports.FileCandidate, onProgress func(int)) (string, error) {
	src, err := file.Source.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("open payload: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, scenarioID, file, src, onProgress))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", pr)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", newStatusError("upload", resp)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload response is missing the document id")
	}
	return out.ID, nil
}

func writeUploadForm(form *multipart.Writer, scenarioID string, file ports.FileCandidate, src io.Reader, onProgress func(int)) error {
	if scenarioID != "" {
		if err := form.WriteField("scenario_id", scenarioID); err != nil {
			return fmt.Errorf("write scenario field: %w", err)
		}
	}
	part, err := form.CreateFormFile("file", file.Name)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	counted := &progressReader{r: src, total: file.SizeBytes, onProgress: onProgress}
	if _, err := io.Copy(part, counted); err != nil {
		return fmt.Errorf("stream payload: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}
	return nil
}

// progressReader reports monotonically non-decreasing percentages of the
// payload drained so far. Zero-size payloads report nothing; the caller
// treats transfer completion, not the callback, as the phase boundary.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	onProgress func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.onProgress != nil && p.total > 0 {
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent > p.last {
			p.last = percent
			p.onProgress(percent)
		}
	}
	return n, err
}

func (c *Client) fetchProgress(ctx context.Context, documentID string) (domain.ProcessingStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/documents/%s/progress", c.baseURL, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ProcessingStatus{}, fmt.Errorf("create progress request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ProcessingStatus{}, fmt.Errorf("progress request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The backend deletes the transient status record after processing.
		return domain.ProcessingStatus{}, fmt.Errorf("progress for %s: %w", documentID, domain.ErrStatusPurged)
	}
	if resp.StatusCode >= 300 {
		return domain.ProcessingStatus{}, newStatusError("progress", resp)
	}

	var out domain.ProcessingStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ProcessingStatus{}, fmt.Errorf("decode progress response: %w", err)
	}
	return out, nil
}
