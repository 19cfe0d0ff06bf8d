package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lksh/markboard/internal/domain/standings"
)

// JSONContentType is the media type of the JSON payloads.
const JSONContentType = "application/json; charset=utf-8"

// EncodeResults writes the bulk results array. Non-ASCII text is written
// as is and HTML characters are not escaped.
func EncodeResults(w io.Writer, results []standings.Result) error {
	if results == nil {
		results = []standings.Result{}
	}
	return encode(w, results)
}

// EncodePersonal writes a personal payload: either a PersonalResult or
// a NotFoundPayload.
func EncodePersonal(w io.Writer, payload any) error {
	switch payload.(type) {
	case standings.PersonalResult, *standings.PersonalResult,
		standings.NotFoundPayload, *standings.NotFoundPayload:
	default:
		return fmt.Errorf("export: unsupported personal payload %T", payload)
	}
	return encode(w, payload)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}
