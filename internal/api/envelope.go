package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/tagmarkapp/tagmark-server/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the envelope used by
// all Tagmark endpoints. Errors keep their code, message and details at the
// top level so clients can branch without unwrapping data.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	switch body := v.(type) {
	case response.Envelope, *response.Envelope:
		return v, nil
	case *APIError:
		return response.Envelope{
			V:       response.EnvelopeVersion,
			Success: false,
			Error:   body.Message,
			Code:    body.Code,
			Message: body.Message,
			Details: body.Details,
		}, nil
	case *huma.ErrorModel:
		return response.Envelope{
			V:       response.EnvelopeVersion,
			Success: false,
			Error:   body.Detail,
			Code:    statusToCode(body.Status),
			Message: body.Detail,
			Details: body.Errors,
		}, nil
	}

	return response.Envelope{
		V:       response.EnvelopeVersion,
		Success: len(status) == 0 || status[0] < '4',
		Data:    v,
	}, nil
}
