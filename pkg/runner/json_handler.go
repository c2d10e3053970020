package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/preceptor/pkg/domain"
)

// JSONHandler implements the IOHandler interface for JSON-Lines communication.
// Every output is one object with a "type" field: turn, artifacts or system.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

type jsonTurn struct {
	Type string `json:"type"`
	Turn
}

type jsonArtifacts struct {
	Type string `json:"type"`
	domain.Artifacts
}

type jsonSystem struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (h *JSONHandler) Output(ctx context.Context, turn Turn) error {
	return h.Encoder.Encode(jsonTurn{Type: "turn", Turn: turn})
}

// Input accepts a JSON string, an object with a "message" field, or raw text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	var obj struct {
		Message string `json:"message"`
	}
	switch {
	case json.Unmarshal([]byte(text), &val) == nil:
	case json.Unmarshal([]byte(text), &obj) == nil:
		val = obj.Message
	default:
		val = text
	}
	return SanitizeInput(val)
}

func (h *JSONHandler) Artifacts(ctx context.Context, arts domain.Artifacts) error {
	return h.Encoder.Encode(jsonArtifacts{Type: "artifacts", Artifacts: arts})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(jsonSystem{Type: "system", Message: msg})
}
