package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/preceptor/pkg/domain"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// initPump starts the background reader so Input can honor ctx cancellation.
func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff so a persistently failing reader does not spin.
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) render(markdown string) string {
	if h.Renderer == nil {
		return markdown
	}
	rendered, err := h.Renderer(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

// Output prints the phase label and the rendered reply.
func (h *TextHandler) Output(ctx context.Context, turn Turn) error {
	fmt.Fprintf(h.Writer, "\n[%s]\n", turn.Phase)
	fmt.Fprintln(h.Writer, strings.TrimSpace(h.render(turn.Message)))
	return nil
}

// Input reads one line, re-prompting when sanitization rejects it.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

// Artifacts prints the report and the persona as markdown sections.
func (h *TextHandler) Artifacts(ctx context.Context, arts domain.Artifacts) error {
	var b strings.Builder
	b.WriteString("## Case report\n\n")
	b.WriteString(strings.TrimSpace(arts.Report))
	b.WriteString("\n\n## Virtual patient\n\n")
	b.WriteString(strings.TrimSpace(arts.VirtualPatient))
	fmt.Fprintln(h.Writer)
	fmt.Fprintln(h.Writer, strings.TrimSpace(h.render(b.String())))
	return nil
}

// SystemOutput prints msg with a [System] prefix.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "\n[System] %s\n", msg)
	return nil
}
