package api

import (
	"cmp"
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tagmarkapp/tagmark-server/internal/domain"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns every tag with its bookmark count",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID:   "renameTag",
		Method:        http.MethodPost,
		Path:          "/api/v1/tags/rename",
		Summary:       "Rename tag",
		Description:   "Schedules moving every bookmark from one tag to another. An empty target deletes the tag.",
		Tags:          []string{"Tags"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleRenameTag)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteTag",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tags/{name}",
		Summary:       "Delete tag",
		Description:   "Schedules removing a tag from every bookmark",
		Tags:          []string{"Tags"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleDeleteTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "recountTags",
		Method:      http.MethodPost,
		Path:        "/api/v1/tags/recount",
		Summary:     "Recount tags",
		Description: "Recomputes every tag count from the bookmarks",
		Tags:        []string{"Tags"},
	}, s.handleRecountTags)
}

// === DTOs ===

// ListTagsInput contains parameters for listing tags.
type ListTagsInput struct {
	Sort string `query:"sort" enum:"name,count" default:"name" doc:"Order by name or by descending count"`
}

// ListTagsResponse contains the tag listing.
type ListTagsResponse struct {
	Tags []*domain.Tag `json:"tags" doc:"Tags with their bookmark counts"`
}

// ListTagsOutput wraps the tag listing for Huma.
type ListTagsOutput struct {
	Body ListTagsResponse
}

// RenameTagRequest is the request body for renaming a tag.
type RenameTagRequest struct {
	From string `json:"from" doc:"Tag to rename" validate:"tagname"`
	To   string `json:"to,omitempty" doc:"New name; empty deletes the tag" validate:"omitempty,tagname"`
}

// RenameTagInput wraps the rename request for Huma.
type RenameTagInput struct {
	Body RenameTagRequest
}

// DeleteTagInput addresses a tag by name.
type DeleteTagInput struct {
	Name string `path:"name" doc:"Tag name"`
}

// ScheduledResponse acknowledges work handed to the task queue.
type ScheduledResponse struct {
	Status string `json:"status" doc:"Always 'scheduled'"`
}

// ScheduledOutput wraps the acknowledgement for Huma.
type ScheduledOutput struct {
	Body ScheduledResponse
}

// RecountResponse reports how many tags were recounted.
type RecountResponse struct {
	Recounted int `json:"recounted"`
}

// RecountOutput wraps the recount result for Huma.
type RecountOutput struct {
	Body RecountResponse
}

// === Handlers ===

func (s *Server) handleListTags(ctx context.Context, input *ListTagsInput) (*ListTagsOutput, error) {
	tags, err := s.services.Tags.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	if input.Sort == "count" {
		slices.SortStableFunc(tags, func(a, b *domain.Tag) int {
			return cmp.Compare(b.Count, a.Count)
		})
	}

	return &ListTagsOutput{Body: ListTagsResponse{Tags: tags}}, nil
}

func (s *Server) handleRenameTag(ctx context.Context, input *RenameTagInput) (*ScheduledOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}
	if err := s.services.Tags.ScheduleRename(ctx, input.Body.From, input.Body.To); err != nil {
		return nil, err
	}
	return &ScheduledOutput{Body: ScheduledResponse{Status: "scheduled"}}, nil
}

func (s *Server) handleDeleteTag(ctx context.Context, input *DeleteTagInput) (*ScheduledOutput, error) {
	if err := s.services.Tags.ScheduleDelete(ctx, input.Name); err != nil {
		return nil, err
	}
	return &ScheduledOutput{Body: ScheduledResponse{Status: "scheduled"}}, nil
}

func (s *Server) handleRecountTags(ctx context.Context, _ *struct{}) (*RecountOutput, error) {
	n, err := s.services.Tags.RecountAll(ctx)
	if err != nil {
		return nil, err
	}
	return &RecountOutput{Body: RecountResponse{Recounted: n}}, nil
}
