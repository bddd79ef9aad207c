package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"filegate/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useServer(t *testing.T, h http.Handler) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	old := BaseURL
	BaseURL = srv.URL
	t.Cleanup(func() { BaseURL = old })
}

func TestPushStreamsMultipartForm(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0o644))

	var gotPath, gotAuth string
	useServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var out []api.FileDto
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			require.NoError(t, err)
			body, _ := io.ReadAll(f)
			f.Close()
			out = append(out, api.FileDto{Filename: fh.Filename, SizeInBytes: int64(len(body))})
		}
		json.NewEncoder(w).Encode(out)
	}))

	files, err := Push(context.Background(), "tok", []string{a, b}, "")
	require.NoError(t, err)
	assert.Equal(t, "/api/files/upload", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, int64(5), files[0].SizeInBytes)
	assert.Equal(t, "b.bin", files[1].Filename)

	_, err = Push(context.Background(), "tok", []string{a}, "reports/q 1.csv")
	require.NoError(t, err)
	assert.Equal(t, "/api/files/uploadFromService?path=reports%2Fq+1.csv", gotPath)
}

func TestPushMissingFile(t *testing.T) {
	_, err := Push(context.Background(), "tok", []string{filepath.Join(t.TempDir(), "nope")}, "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPushReportsServerErrors(t *testing.T) {
	f := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("a"), 0o644))

	useServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(api.ErrorResponse{Errors: []string{"unknown token"}})
	}))

	_, err := Push(context.Background(), "bad", []string{f}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown token")
}

func TestPull(t *testing.T) {
	useServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/files/download/eu/u1/s1/f1":
			w.Header().Set("Content-Disposition", `attachment; filename="na_ve.txt"; filename*=UTF-8''na%C3%AFve.txt`)
			io.WriteString(w, "content")
		case "/api/files/download/u1/s1/f2":
			w.Header().Set("Content-Disposition", `attachment; filename="../../etc/passwd"`)
			io.WriteString(w, "sneaky")
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorResponse{Errors: []string{"file not found"}})
		}
	}))
	out := t.TempDir()

	path, err := Pull(context.Background(), "eu/u1/s1/f1", out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "naïve.txt"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	path, err = Pull(context.Background(), "u1/s1/f2", out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "passwd"), path)

	_, err = Pull(context.Background(), "eu/u1/s1/missing", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")

	_, err = Pull(context.Background(), "just-one", out)
	assert.Error(t, err)
}

func TestFilenameFromHeader(t *testing.T) {
	assert.Equal(t, "f1", filenameFromHeader("", "eu/u/s/f1"))
	assert.Equal(t, "f1", filenameFromHeader(`attachment; filename=".."`, "eu/u/s/f1"))
	assert.Equal(t, "report.pdf", filenameFromHeader(`attachment; filename="report.pdf"`, "eu/u/s/f1"))
}

func TestListAndMe(t *testing.T) {
	useServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/files/list":
			json.NewEncoder(w).Encode([]api.FileDto{{FileID: "f1", Location: "eu", Filename: "a.txt"}})
		case "/api/auth/me":
			io.WriteString(w, `{"id":"42","name":"alice","role":"user","owner":"42"}`)
		}
	}))

	files, err := List(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "f1", files[0].FileID)

	account, err := Me("tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Name)
	assert.Equal(t, "42", account.Owner)

	_, err = Me("other")
	assert.Error(t, err)
}

func TestTokenAndBaseURLFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FILEGATE_URL", "")
	old := BaseURL
	t.Cleanup(func() { BaseURL = old })

	assert.Empty(t, ReadToken())
	require.NoError(t, WriteToken("secret"))
	assert.Equal(t, "secret", ReadToken())
	require.NoError(t, RemoveToken())
	assert.Empty(t, ReadToken())
	require.NoError(t, RemoveToken())

	require.NoError(t, WriteBaseURL("https://files.example.com/\r\n"))
	BaseURL = "http://other"
	require.NoError(t, LoadBaseURL())
	assert.Equal(t, "https://files.example.com", BaseURL)

	t.Setenv("FILEGATE_URL", "http://env.example.com/")
	require.NoError(t, LoadBaseURL())
	assert.Equal(t, "http://env.example.com", BaseURL)

	assert.Error(t, WriteBaseURL("not a url"))
}
