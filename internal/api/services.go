package api

import (
	"github.com/tagmarkapp/tagmark-server/internal/service"
	"github.com/tagmarkapp/tagmark-server/internal/taskqueue"
)

// Services groups the business logic used by the API server.
type Services struct {
	Bookmarks *service.BookmarkService
	Tags      *service.TagLedger
	Tasks     *taskqueue.Queue
}
