package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"filegate/pkg/api"
)

// Push uploads files in one request. With a non-empty path the files go to
// that path through the service route.
func Push(ctx context.Context, token string, files []string, path string) ([]api.FileDto, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to push")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, err
		}
	}

	route := "/api/files/upload"
	if path != "" {
		route = "/api/files/uploadFromService?path=" + url.QueryEscape(path)
	}

	// Stream the form instead of buffering every file in memory.
	pr, pw := io.Pipe()
	defer pr.Close()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(writer, files))
	}()

	req, err := newRequest(http.MethodPost, route, token, pr)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var result []api.FileDto
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

func writeForm(writer *multipart.Writer, files []string) error {
	for _, name := range files {
		if err := writeFormFile(writer, name); err != nil {
			return err
		}
	}
	return writer.Close()
}

func writeFormFile(writer *multipart.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := writer.CreateFormFile("files", filepath.Base(name))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Pull downloads ref ("location/uid/session/file" or "uid/session/file")
// into outDir, naming the file after the server's Content-Disposition.
// It returns the written path.
func Pull(ctx context.Context, ref, outDir string) (string, error) {
	ref = strings.Trim(ref, "/")
	if n := strings.Count(ref, "/"); n < 2 || n > 3 {
		return "", fmt.Errorf("invalid file reference %q, expected [location/]uid/session/file", ref)
	}

	req, err := newRequest(http.MethodGet, "/api/files/download/"+ref, "", nil)
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)

	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	name := filenameFromHeader(resp.Header.Get("Content-Disposition"), ref)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(outDir, name)

	tmp, err := os.CreateTemp(outDir, ".filegate-pull-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", err
	}
	return out, nil
}

// filenameFromHeader extracts a safe base name, falling back to the last
// segment of ref.
func filenameFromHeader(header, ref string) string {
	fallback := ref[strings.LastIndex(ref, "/")+1:]
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return fallback
	}
	name := filepath.Base(filepath.FromSlash(strings.ReplaceAll(params["filename"], `\`, "/")))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return fallback
	}
	return name
}

// List returns every file the token's owner has stored.
func List(ctx context.Context, token string) ([]api.FileDto, error) {
	req, err := newRequest(http.MethodGet, "/api/files/list", token, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var files []api.FileDto
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, err
	}
	return files, nil
}
