package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagmarkapp/tagmark-server/internal/service"
)

const bookmarkFile = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
    <DT><H3>dev</H3>
    <DL><p>
        <DT><A HREF="https://go.dev" ADD_DATE="1700000000" TAGS="go">Go</A>
        <DD>The Go site
        <DT><A HREF="https://ziglang.org" ADD_DATE="1700000100">Zig</A>
    </DL><p>
    <DT><A HREF="https://news.example" ADD_DATE="1700000200">News</A>
</DL><p>
`

func uploadRequest(t *testing.T, field, contentType, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="bookmarks.html"`, field))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImport(t *testing.T) {
	ts := setupTestServer(t)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, uploadRequest(t, ImportFormField, "text/html", bookmarkFile))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decode[ImportResult](t, rec.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, 3, env.Data.Imported)

	page := decode[service.BookmarkPage](t, ts.api.Get("/api/v1/bookmarks?tag=dev").Body.Bytes())
	assert.Equal(t, 2, page.Data.Total)

	tags := tagCounts(t, ts, "")
	require.Len(t, tags, 2)
	assert.Equal(t, "dev", tags[0].Name)
	assert.Equal(t, 2, tags[0].Count)
	assert.Equal(t, "go", tags[1].Name)
}

func TestImport_NotHTML(t *testing.T) {
	ts := setupTestServer(t)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, uploadRequest(t, ImportFormField, "application/json", `{"url":"x"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ImportResult](t, rec.Body.Bytes()).Data.Imported)
}

func TestImport_HTMLButNotNetscape(t *testing.T) {
	ts := setupTestServer(t)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, uploadRequest(t, ImportFormField, "text/html; charset=utf-8", "<html><a href='https://x.example'>x</a></html>"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ImportResult](t, rec.Body.Bytes()).Data.Imported)
}

func TestImport_MissingFile(t *testing.T) {
	ts := setupTestServer(t)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, uploadRequest(t, "other_field", "text/html", bookmarkFile))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decode[any](t, rec.Body.Bytes())
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION", env.Code)
}

func TestImport_NotMultipart(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", strings.NewReader(bookmarkFile))
	req.Header.Set("Content-Type", "text/html")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	ts := setupTestServer(t)
	ts.createBookmark(t, "https://go.dev", "go", "lang")
	ts.createBookmark(t, "https://ziglang.org", "lang")

	resp := ts.api.Get("/api/v1/export")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "attachment")

	body := resp.Body.String()
	assert.True(t, strings.HasPrefix(body, "<!DOCTYPE NETSCAPE-Bookmark-file-1>"))
	assert.Contains(t, body, `HREF="https://go.dev"`)
	assert.Contains(t, body, `HREF="https://ziglang.org"`)

	resp = ts.api.Get("/api/v1/export?tag=go")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `HREF="https://go.dev"`)
	assert.NotContains(t, resp.Body.String(), "ziglang")
}

func TestExport_ImportRoundTrip(t *testing.T) {
	src := setupTestServer(t)
	src.createBookmark(t, "https://go.dev", "go")
	src.createBookmark(t, "https://ziglang.org", "zig", "lang")

	exported := src.api.Get("/api/v1/export").Body.String()

	dst := setupTestServer(t)
	rec := httptest.NewRecorder()
	dst.ServeHTTP(rec, uploadRequest(t, ImportFormField, "text/html", exported))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[ImportResult](t, rec.Body.Bytes()).Data.Imported)

	got := decode[service.BookmarkPage](t, dst.api.Get("/api/v1/bookmarks?tag=lang&tag=zig").Body.Bytes())
	require.Len(t, got.Data.Bookmarks, 1)
	assert.Equal(t, "https://ziglang.org", got.Data.Bookmarks[0].URL)
}
