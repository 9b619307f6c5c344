package enquirywitch

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrNoRenderer       = errors.New("enquirywitch: renderer is required")
	ErrNoExpander       = errors.New("enquirywitch: text expander is required")
	ErrPassageNotFound  = errors.New("passage not found")
	ErrNoStartPassage   = errors.New("start passage not found")
	ErrNoStoryData      = errors.New("no tw-storydata element found")
	ErrDuplicatePassage = errors.New("duplicate passage")
)

// ParseError describes a problem found while loading a story.
type ParseError struct {
	File    string // Source file path
	Passage string // Passage name, if known
	Line    int    // Line number (1-indexed, 0 if unknown)
	Message string
	Hint    string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return e.Format()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Format returns the error with file position, surrounding source lines and
// hint.
func (e *ParseError) Format() string {
	var b strings.Builder

	where := e.File
	if e.Passage != "" {
		if where != "" {
			where += " "
		}
		where += fmt.Sprintf("(passage %q)", e.Passage)
	}
	if where == "" {
		where = "story"
	}
	b.WriteString(fmt.Sprintf("Error in %s\n", where))

	if e.Line > 0 {
		b.WriteString(fmt.Sprintf("Line %d: %s\n", e.Line, e.Message))
	} else {
		b.WriteString(e.Message + "\n")
	}

	b.WriteString(e.codeContext())

	if e.Hint != "" {
		b.WriteString(fmt.Sprintf("Tip: %s\n", e.Hint))
	}
	return b.String()
}

// codeContext shows two lines either side of the error line.
func (e *ParseError) codeContext() string {
	if e.File == "" || e.Line < 1 {
		return ""
	}

	file, err := os.Open(e.File)
	if err != nil {
		return ""
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	for i := max(1, e.Line-2); i <= min(len(lines), e.Line+2); i++ {
		marker := " "
		if i == e.Line {
			marker = ">"
		}
		b.WriteString(fmt.Sprintf("%s %3d | %s\n", marker, i, lines[i-1]))
	}
	return b.String()
}

// NewParseError creates a ParseError for file.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{
		File:    file,
		Line:    line,
		Message: message,
	}
}

// WithPassage names the passage the error belongs to.
func (e *ParseError) WithPassage(name string) *ParseError {
	e.Passage = name
	return e
}

// WithHint adds a suggestion for fixing the error.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// WithCause records the underlying error.
func (e *ParseError) WithCause(err error) *ParseError {
	e.Err = err
	return e
}
