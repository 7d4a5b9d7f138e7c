package scan

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalid marks a scan or image that fails validation.
var ErrInvalid = errors.New("invalid scan")

// Image is a decoded data URI.
type Image struct {
	MediaType string
	Data      []byte
}

// Base64 returns the payload re-encoded as standard base64.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI renders the image back into data URI form.
func (i Image) DataURI() string {
	return "data:" + i.MediaType + ";base64," + i.Base64()
}

// ParseImage decodes a "data:image/<subtype>;base64,<payload>" URI.
func ParseImage(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: image must be a data URI", ErrInvalid)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: malformed data URI", ErrInvalid)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Image{}, fmt.Errorf("%w: image data URI must be base64 encoded", ErrInvalid)
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if !strings.HasPrefix(mediaType, "image/") || len(mediaType) == len("image/") {
		return Image{}, fmt.Errorf("%w: unsupported media type %q", ErrInvalid, mediaType)
	}
	if payload == "" {
		return Image{}, fmt.Errorf("%w: empty image payload", ErrInvalid)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: decoding image payload: %v", ErrInvalid, err)
	}
	return Image{MediaType: mediaType, Data: data}, nil
}

// Validate checks the fields every stored scan must carry.
func (s Scan) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if _, err := ParseImage(s.Image); err != nil {
		return err
	}
	if strings.TrimSpace(s.CommonName) == "" {
		return fmt.Errorf("%w: commonName is required", ErrInvalid)
	}
	if strings.TrimSpace(s.ScientificName) == "" {
		return fmt.Errorf("%w: scientificName is required", ErrInvalid)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalid, s.Confidence)
	}
	if s.Reminder != nil {
		if err := s.Reminder.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the reminder frequency.
func (r Reminder) Validate() error {
	if r.FrequencyDays <= 0 {
		return fmt.Errorf("%w: reminder frequencyDays must be positive, got %d", ErrInvalid, r.FrequencyDays)
	}
	return nil
}
