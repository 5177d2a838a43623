package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/tagmarkapp/tagmark-server/internal/http/response"
)

// ImportFormField is the multipart field carrying the uploaded bookmark file.
const ImportFormField = "bookmark_file"

// ImportResult reports how many bookmarks an upload created.
type ImportResult struct {
	Imported int `json:"imported"`
}

// handleImport accepts a multipart upload of a Netscape bookmark file.
// Files that are not text/html import nothing.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "upload too large", s.logger)
			return
		}
		response.BadRequest(w, "expected a multipart form upload", s.logger)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(ImportFormField)
	if err != nil {
		response.BadRequest(w, "missing "+ImportFormField+" file", s.logger)
		return
	}
	defer file.Close()

	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/html" {
		s.logger.Info("import skipped: not an HTML file",
			"filename", header.Filename,
			"content_type", header.Header.Get("Content-Type"),
		)
		response.Success(w, ImportResult{}, s.logger)
		return
	}

	n, err := s.services.Bookmarks.ImportNetscape(r.Context(), file)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.logger.Info("bookmark file imported", "filename", header.Filename, "imported", n)
	response.Success(w, ImportResult{Imported: n}, s.logger)
}
