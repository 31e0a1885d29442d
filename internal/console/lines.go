package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"
)

const maxLine = 4 << 20

// Interactive reports whether f is a terminal, which is when ServeLines
// should print a prompt
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ServeLines reads one JSON request per line from in and writes one JSON
// response per line to out, until in is exhausted or ctx is done. A non-nil
// prompt receives "> " before each read. Blank lines and lines starting with
// '#' are skipped.
func (h *Handler) ServeLines(ctx context.Context, in io.Reader, out io.Writer, prompt io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	enc := json.NewEncoder(out)

	for {
		if prompt != nil {
			fmt.Fprint(prompt, "> ")
		}
		if !sc.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var resp Response
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp = Response{ID: uuid.NewString(), Error: &ErrorBody{Kind: ErrInvalidRequest, Message: "malformed request: " + err.Error()}}
		} else {
			resp = h.Handle(ctx, req)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	return nil
}
