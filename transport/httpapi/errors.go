package httpapi

import (
	"errors"
	"net/http"

	"github.com/unkn0wn-root/collcache"
	"github.com/unkn0wn-root/collcache/collection"
)

type errorBody struct {
	Kind    string       `json:"kind"`
	Message string       `json:"message"`
	Entries []entryError `json:"entries,omitempty"`
}

type entryError struct {
	Index        int    `json:"index"`
	CollectionID string `json:"collectionID"`
	ItemID       string `json:"itemID"`
	Message      string `json:"message"`
}

// classify maps an API error to its HTTP status and body.
func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}

	var (
		ae *collcache.AggregateError
		ve *collcache.ValidationError
		ce *collcache.ConflictError
		nf *collcache.NotFoundError
		be *collcache.BackendError
	)
	switch {
	case errors.As(err, &ae):
		body.Kind = "aggregate"
		for _, e := range ae.Entries {
			body.Entries = append(body.Entries, entryError{
				Index:        e.Index,
				CollectionID: e.CollectionID,
				ItemID:       e.ItemID,
				Message:      e.Err.Error(),
			})
		}
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &ve):
		body.Kind = "validation"
		return http.StatusBadRequest, body
	case errors.As(err, &ce):
		body.Kind = "conflict"
		return http.StatusConflict, body
	case errors.As(err, &nf), errors.Is(err, collection.ErrNotFound):
		body.Kind = "not_found"
		return http.StatusNotFound, body
	case errors.As(err, &be):
		body.Kind = "backend"
		if errors.Is(err, collection.ErrWrongType) || errors.Is(err, collection.ErrNotNumeric) {
			return http.StatusBadRequest, body
		}
		return http.StatusBadGateway, body
	default:
		body.Kind = "internal"
		return http.StatusInternalServerError, body
	}
}
