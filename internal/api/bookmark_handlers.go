package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
	"github.com/tagmarkapp/tagmark-server/internal/service"
)

func (s *Server) registerBookmarkRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBookmarks",
		Method:      http.MethodGet,
		Path:        "/api/v1/bookmarks",
		Summary:     "List bookmarks",
		Description: "Returns one page of bookmarks carrying every given tag, newest first. A page past the end redirects to the last page.",
		Tags:        []string{"Bookmarks"},
	}, s.handleListBookmarks)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createBookmark",
		Method:        http.MethodPost,
		Path:          "/api/v1/bookmarks",
		Summary:       "Create bookmark",
		Description:   "Saves a new bookmark. Returns 409 with the existing bookmark when the URL is already saved.",
		Tags:          []string{"Bookmarks"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBookmark",
		Method:      http.MethodGet,
		Path:        "/api/v1/bookmarks/by-url",
		Summary:     "Get bookmark",
		Description: "Returns the bookmark saved for an exact URL",
		Tags:        []string{"Bookmarks"},
	}, s.handleGetBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateBookmark",
		Method:      http.MethodPut,
		Path:        "/api/v1/bookmarks/by-url",
		Summary:     "Update bookmark",
		Description: "Replaces the title, description and tags of a bookmark",
		Tags:        []string{"Bookmarks"},
	}, s.handleUpdateBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteBookmark",
		Method:        http.MethodDelete,
		Path:          "/api/v1/bookmarks/by-url",
		Summary:       "Delete bookmark",
		Description:   "Deletes a bookmark and recounts its tags",
		Tags:          []string{"Bookmarks"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "suggestBookmark",
		Method:      http.MethodGet,
		Path:        "/api/v1/bookmarks/suggest",
		Summary:     "Suggest bookmark",
		Description: "Normalizes a URL and pre-fills the new bookmark form with the saved bookmark or the page title",
		Tags:        []string{"Bookmarks"},
	}, s.handleSuggestBookmark)
}

// === DTOs ===

// ListBookmarksInput contains parameters for listing bookmarks.
type ListBookmarksInput struct {
	Tags     []string `query:"tag,explode" doc:"Only bookmarks carrying all of these tags"`
	Page     int      `query:"page" minimum:"0" doc:"1-based page number"`
	PageSize int      `query:"page_size" minimum:"0" maximum:"1000" doc:"Bookmarks per page (default 50)"`
}

// ListBookmarksOutput contains a page of bookmarks, or a redirect to the last page.
type ListBookmarksOutput struct {
	Status   int
	Location string `header:"Location"`
	Body     *service.BookmarkPage
}

// BookmarkRequest is the editable content of a bookmark.
type BookmarkRequest struct {
	Title string   `json:"title,omitempty" maxLength:"2048" doc:"Title; defaults to the URL"`
	Desc  string   `json:"desc,omitempty" maxLength:"65536" doc:"Free-form description"`
	Tags  []string `json:"tags,omitempty" maxItems:"256" doc:"Tags; entries are split on whitespace" validate:"max=256,dive,max=128"`
}

// CreateBookmarkRequest is the request body for creating a bookmark.
type CreateBookmarkRequest struct {
	URL string `json:"url" minLength:"1" maxLength:"4096" doc:"URL to save; http:// is assumed when no scheme is given" validate:"required"`
	BookmarkRequest
}

// CreateBookmarkInput wraps the create request for Huma.
type CreateBookmarkInput struct {
	Body CreateBookmarkRequest
}

// BookmarkOutput wraps a bookmark for Huma.
type BookmarkOutput struct {
	Body *domain.Bookmark
}

// BookmarkURLInput addresses a bookmark by its exact URL.
type BookmarkURLInput struct {
	URL string `query:"url" required:"true" minLength:"1" doc:"Exact bookmark URL"`
}

// UpdateBookmarkInput wraps the update request for Huma.
type UpdateBookmarkInput struct {
	URL  string `query:"url" required:"true" minLength:"1" doc:"Exact bookmark URL"`
	Body BookmarkRequest
}

// SuggestOutput wraps a suggestion for Huma.
type SuggestOutput struct {
	Body *service.Suggestion
}

// === Handlers ===

func (s *Server) handleListBookmarks(ctx context.Context, input *ListBookmarksInput) (*ListBookmarksOutput, error) {
	page, err := s.services.Bookmarks.List(ctx, service.ListOptions{
		Tags:     input.Tags,
		Page:     input.Page,
		PageSize: input.PageSize,
	})
	if err != nil {
		return nil, err
	}

	if page.Page > page.PageCount {
		return &ListBookmarksOutput{
			Status:   http.StatusTemporaryRedirect,
			Location: lastPageURL(page, input.PageSize),
			Body:     page,
		}, nil
	}

	return &ListBookmarksOutput{Status: http.StatusOK, Body: page}, nil
}

func lastPageURL(page *service.BookmarkPage, requestedSize int) string {
	q := url.Values{}
	for _, t := range page.Tags {
		q.Add("tag", t)
	}
	q.Set("page", strconv.Itoa(page.PageCount))
	if requestedSize > 0 {
		q.Set("page_size", strconv.Itoa(page.PageSize))
	}
	return "/api/v1/bookmarks?" + q.Encode()
}

func (s *Server) handleCreateBookmark(ctx context.Context, input *CreateBookmarkInput) (*BookmarkOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	b, err := s.services.Bookmarks.Create(ctx, domain.BookmarkInput{
		URL:   input.Body.URL,
		Title: input.Body.Title,
		Desc:  input.Body.Desc,
		Tags:  input.Body.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &BookmarkOutput{Body: b}, nil
}

func (s *Server) handleGetBookmark(ctx context.Context, input *BookmarkURLInput) (*BookmarkOutput, error) {
	b, err := s.services.Bookmarks.FindByURL(ctx, input.URL)
	if err != nil {
		return nil, err
	}
	return &BookmarkOutput{Body: b}, nil
}

func (s *Server) handleUpdateBookmark(ctx context.Context, input *UpdateBookmarkInput) (*BookmarkOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	b, err := s.services.Bookmarks.Update(ctx, input.URL, service.BookmarkUpdate{
		Title: input.Body.Title,
		Desc:  input.Body.Desc,
		Tags:  input.Body.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &BookmarkOutput{Body: b}, nil
}

func (s *Server) handleDeleteBookmark(ctx context.Context, input *BookmarkURLInput) (*struct{}, error) {
	if err := s.services.Bookmarks.Delete(ctx, input.URL); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleSuggestBookmark(ctx context.Context, input *BookmarkURLInput) (*SuggestOutput, error) {
	suggestion, err := s.services.Bookmarks.Suggest(ctx, input.URL)
	if err != nil {
		return nil, err
	}
	return &SuggestOutput{Body: suggestion}, nil
}
