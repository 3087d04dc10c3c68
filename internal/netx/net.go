package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadError is returned when the upload target answers with a non-2xx status.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %d; body: %s", e.Status, e.Body)
}

// PutBinary uploads data to url with a single PUT request. Used for
// pre-registered upload slots (LinkedIn assets, S3 presigned URLs) where the
// target hands out an opaque URL and expects the raw bytes.
func PutBinary(ctx context.Context, client *http.Client, url string, data []byte, contentType string, header http.Header) error {
	if client == nil {
		client = http.DefaultClient
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UploadError{Status: resp.StatusCode, Body: string(b)}
	}
	return nil
}
