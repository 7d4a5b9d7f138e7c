package engine

import "fmt"

// Message represents a chat message. Images are attached to user turns.
type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// Image is a base64 encoded picture with its media type.
type Image struct {
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
}

// Schema describes the expected JSON output structure for structured chat
// responses. Items and Properties nest for arrays and objects.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// StatusError reports a non-2xx answer from a backend.
type StatusError struct {
	Backend string
	Code    int
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Backend, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Backend, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// HTTPStatus returns the backend status code.
func (e *StatusError) HTTPStatus() int { return e.Code }
