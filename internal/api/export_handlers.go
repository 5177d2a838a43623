package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagmarkapp/tagmark-server/internal/netscape"
)

func (s *Server) registerExportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "exportBookmarks",
		Method:      http.MethodGet,
		Path:        "/api/v1/export",
		Summary:     "Export bookmarks",
		Description: "Downloads bookmarks carrying every given tag as a Netscape bookmark file",
		Tags:        []string{"Import/Export"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Netscape bookmark file",
				Content:     map[string]*huma.MediaType{"text/html": {}},
			},
		},
	}, s.handleExport)
}

// ExportInput contains parameters for exporting bookmarks.
type ExportInput struct {
	Tags []string `query:"tag,explode" doc:"Only bookmarks carrying all of these tags"`
}

func (s *Server) handleExport(ctx context.Context, input *ExportInput) (*huma.StreamResponse, error) {
	// Query before streaming so store failures still produce an error envelope.
	bookmarks, err := s.services.Bookmarks.Export(ctx, input.Tags)
	if err != nil {
		return nil, err
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "text/html; charset=utf-8")
			hctx.SetHeader("Content-Disposition", `attachment; filename="bookmarks.html"`)
			hctx.SetHeader("Cache-Control", CacheNoStore)
			hctx.SetStatus(http.StatusOK)

			if err := netscape.Write(hctx.BodyWriter(), bookmarks, time.Now()); err != nil {
				s.logger.Warn("export stream interrupted", "error", err, "bookmarks", len(bookmarks))
			}
		},
	}, nil
}
