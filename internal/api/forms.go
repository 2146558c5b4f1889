// ABOUTME: Form endpoints: pre-signed upload URLs, raw PUT uploads, multipart submission
// ABOUTME: Files are uploaded before submit; the submission carries their final URLs

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// UploadURLRequest asks for a pre-signed upload target.
type UploadURLRequest struct {
	WidgetID    string `json:"widget_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// UploadTarget is where to PUT the file and the URL it will be served from.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// UploadURL requests a pre-signed upload URL.
func (c *Client) UploadURL(ctx context.Context, in UploadURLRequest) (*UploadTarget, error) {
	var out UploadTarget
	if err := c.doJSON(ctx, http.MethodPost, PathUploadURL, nil, in, &out); err != nil {
		return nil, fmt.Errorf("requesting upload url: %w", err)
	}
	if out.UploadURL == "" {
		return nil, fmt.Errorf("requesting upload url: empty upload url")
	}
	return &out, nil
}

// PutFile uploads body to a pre-signed URL.
func (c *Client) PutFile(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uploading file: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("uploading file: %w", err)
	}
	return nil
}

// FormSubmission is a completed form.
type FormSubmission struct {
	WidgetID string
	TabName  string
	Fields   map[string]string
	// Files maps field id to the uploaded file URL.
	Files map[string]string
	Token string
}

// SubmitForm posts the submission as multipart/form-data.
func (c *Client) SubmitForm(ctx context.Context, in FormSubmission) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	write := func(k, v string) error {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("writing form field %q: %w", k, err)
		}
		return nil
	}

	if err := write("widget_id", in.WidgetID); err != nil {
		return err
	}
	if err := write("tab_name", in.TabName); err != nil {
		return err
	}
	if in.Token != "" {
		if err := write("session_token", in.Token); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(in.Fields) {
		if err := write("field:"+k, in.Fields[k]); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(in.Files) {
		if err := write("file:"+k, in.Files[k]); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(PathSubmitForm), &buf)
	if err != nil {
		return fmt.Errorf("building submit request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if in.Token != "" {
		req.Header.Set("Authorization", "Bearer "+in.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
