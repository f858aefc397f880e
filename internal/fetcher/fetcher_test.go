package fetcher

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFetcher(retries int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(3).Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.tif")

	n, err := newTestFetcher(3).DownloadToFile(context.Background(), srv.URL+"/file", path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content here", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no partial files left behind")
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.tif")
	_, err := newTestFetcher(3).DownloadToFile(context.Background(), srv.URL+"/missing", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("success"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(3).Download(context.Background(), srv.URL+"/retry")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2).Download(context.Background(), srv.URL+"/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
}

func TestRateLimiting(t *testing.T) {
	var reqTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTimes = append(reqTimes, time.Now())
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		RateLimiters: map[string]*rate.Limiter{
			srv.Listener.Addr().String(): rate.NewLimiter(4, 1),
		},
	})

	for range 3 {
		body, err := f.Download(context.Background(), srv.URL+"/limited")
		require.NoError(t, err)
		body.Close()
	}

	require.Len(t, reqTimes, 3)
	assert.GreaterOrEqual(t, reqTimes[2].Sub(reqTimes[0]).Milliseconds(), int64(400), "requests should be rate limited")
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, time.Hour, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, "spatial-aez/1.0", f.opts.UserAgent)
}

type recordingFetcher struct{ urls []string }

func (r *recordingFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	r.urls = append(r.urls, url)
	return io.NopCloser(strings.NewReader("x")), nil
}

func (r *recordingFetcher) DownloadToFile(_ context.Context, url, _ string) (int64, error) {
	r.urls = append(r.urls, url)
	return 1, nil
}

func TestRouter(t *testing.T) {
	h, f := &recordingFetcher{}, &recordingFetcher{}
	r := &Router{HTTP: h, FTP: f}
	ctx := context.Background()

	_, err := r.DownloadToFile(ctx, "https://example.org/a.tif", "a.tif")
	require.NoError(t, err)
	_, err = r.Download(ctx, "ftp://geo10.example.org/v207/b.tif")
	require.NoError(t, err)
	_, err = r.Download(ctx, "s3://bucket/c.tif")
	assert.Error(t, err)

	assert.Equal(t, []string{"https://example.org/a.tif"}, h.urls)
	assert.Equal(t, []string{"ftp://geo10.example.org/v207/b.tif"}, f.urls)
}

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://geo10.elie.ucl.ac.be/v207/ESACCI-LC-L4-LCCS-Map-300m-P1Y-2015-v2.0.7.tif",
			wantHost: "geo10.elie.ucl.ac.be:21",
			wantPath: "/v207/ESACCI-LC-L4-LCCS-Map-300m-P1Y-2015-v2.0.7.tif",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.com:2121/data/file.tif",
			wantHost: "ftp.example.com:2121",
			wantPath: "/data/file.tif",
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.com/file.tif",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_Defaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, "anonymous", f.opts.User)
}

func TestFTPDownload_DialFailure(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{Timeout: 200 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := f.DownloadToFile(ctx, "ftp://127.0.0.1:1/file.tif", filepath.Join(t.TempDir(), "f.tif"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp dial")
}

// writeZip builds an archive with the given name->content entries.
func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractZIP(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"countries.shp": "shp",
		"countries.dbf": "dbf",
	})
	dest := t.TempDir()

	paths, err := ExtractZIP(archive, dest)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dest, "countries.shp"),
		filepath.Join(dest, "countries.dbf"),
	}, paths)
}

func TestExtractZIP_Slip(t *testing.T) {
	archive := writeZip(t, map[string]string{"../evil.txt": "x"})
	_, err := ExtractZIP(archive, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIPMember(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"Beck_KG_V1/Beck_KG_V1_present_0p0083.tif": "present",
		"Beck_KG_V1/Beck_KG_V1_future_0p0083.tif":  "future",
	})
	dest := filepath.Join(t.TempDir(), "kg", "present.tif")

	require.NoError(t, ExtractZIPMember(archive, "Beck_KG_V1_present_0p0083.tif", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "present", string(data))

	err = ExtractZIPMember(archive, "missing.tif", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
