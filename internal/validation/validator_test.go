package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tagmarkapp/tagmark-server/internal/errors"
	"github.com/tagmarkapp/tagmark-server/internal/validation"
)

type renameRequest struct {
	From  string   `json:"from" validate:"tagname"`
	To    string   `json:"to,omitempty" validate:"omitempty,tagname"`
	Tags  []string `json:"tags" validate:"max=3,dive,tagname"`
	Title string   `json:"title" validate:"max=10"`
}

func TestValidator_Valid(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(renameRequest{From: "go", To: "golang", Tags: []string{"a"}}))
	assert.NoError(t, v.Validate(renameRequest{From: "go"}), "empty to is allowed")
}

func TestValidator_Errors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       renameRequest
		wantField string
	}{
		{"empty from", renameRequest{}, "from"},
		{"from with space", renameRequest{From: "two words"}, "from"},
		{"to with tab", renameRequest{From: "a", To: "b\tc"}, "to"},
		{"tag with space", renameRequest{From: "a", Tags: []string{"ok", "not ok"}}, "tags[1]"},
		{"too many tags", renameRequest{From: "a", Tags: []string{"a", "b", "c", "d"}}, "tags"},
		{"long title", renameRequest{From: "a", Title: "this title is too long"}, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_TagnameMessage(t *testing.T) {
	err := validation.New().Validate(renameRequest{From: "a b"})

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "must be a single word without spaces", domainErr.Details.(map[string]string)["from"])
}
