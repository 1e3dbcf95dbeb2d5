package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
)

var ErrPromptAborted = liner.ErrPromptAborted

// RunTerminal drives s with line editing and a history file. An empty
// historyPath disables history.
func RunTerminal(s *Session, historyPath string) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}

	err := s.Run(ln, ln.AppendHistory)

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}
	return err
}

// ScanReader reads lines from a plain reader, echoing the prompt to out.
type ScanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func NewScanReader(in io.Reader, out io.Writer) *ScanReader {
	return &ScanReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *ScanReader) Prompt(prompt string) (string, error) {
	if r.out != nil {
		fmt.Fprint(r.out, prompt)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}
