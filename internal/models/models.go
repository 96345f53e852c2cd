// ABOUTME: Response and request schemas for the Novo Rio game API
// ABOUTME: Shared envelope, pagination and identifier types with shape validation

package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidShape is wrapped by every Validate failure.
var ErrInvalidShape = errors.New("invalid response shape")

// Validator is implemented by schemas that can check their own shape
// after decoding.
type Validator interface {
	Validate() error
}

func shapeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidShape, fmt.Sprintf(format, args...))
}

// ID is a resource identifier. The API returns numeric ids for some
// resources and UUID strings for others; both decode to a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Envelope is the API's success wrapper: {success, data, message}.
type Envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Page is the paginated list envelope.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

func (p *Page[T]) Validate() error {
	if p.Items == nil {
		return shapeErr("page without items")
	}
	if p.Total < 0 {
		return shapeErr("negative page total %d", p.Total)
	}
	for i := range p.Items {
		if v, ok := any(&p.Items[i]).(Validator); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	return nil
}

// List validates every element of a bare JSON array response.
type List[T any] []T

func (l *List[T]) Validate() error {
	if *l == nil {
		return shapeErr("expected a list")
	}
	for i := range *l {
		if v, ok := any(&(*l)[i]).(Validator); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	return nil
}
