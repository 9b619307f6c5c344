package enquirywitch

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/multierr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header of a passage file.
type Frontmatter struct {
	PID   int      `yaml:"pid"`
	Name  string   `yaml:"name"`
	Tags  []string `yaml:"tags"`
	Start bool     `yaml:"start"`
}

// ParseHTML reads a story published as Twine 2 HTML.
func ParseHTML(r io.Reader, rdr *Renderer) (*Story, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse story HTML: %w", err)
	}

	data := findElement(doc, "tw-storydata")
	if data == nil {
		return nil, ErrNoStoryData
	}

	var (
		passages []*Passage
		scripts  []string
		styles   []string
		errs     error
	)
	for n := range data.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		switch {
		case n.Data == "tw-passagedata":
			p, err := passageFromNode(rdr, n)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			passages = append(passages, p)
		case n.DataAtom == atom.Script && attr(n, "type") == "text/twine-javascript":
			scripts = append(scripts, textContent(n))
		case n.DataAtom == atom.Style && attr(n, "type") == "text/twine-css":
			styles = append(styles, textContent(n))
		}
	}
	if errs != nil {
		return nil, errs
	}

	start, _ := strconv.Atoi(attr(data, "startnode"))
	story, err := NewStory(attr(data, "name"), start, passages)
	if err != nil {
		return nil, err
	}
	story.Creator = attr(data, "creator")
	story.CreatorVersion = attr(data, "creator-version")
	story.UserScripts = scripts
	story.UserStyles = styles
	return story, nil
}

func passageFromNode(rdr *Renderer, n *html.Node) (*Passage, error) {
	name := attr(n, "name")

	id := 0
	if pid := attr(n, "pid"); pid != "" {
		var err error
		if id, err = strconv.Atoi(pid); err != nil {
			return nil, (&ParseError{
				Message: fmt.Sprintf("invalid pid %q", pid),
				Err:     err,
			}).WithPassage(name)
		}
	}

	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, fmt.Errorf("failed to read passage %q: %w", name, err)
		}
	}

	return NewPassage(rdr, id, name, strings.Fields(attr(n, "tags")), buf.String())
}

func findElement(n *html.Node, tag string) *html.Node {
	for d := range n.Descendants() {
		if d.Type == html.ElementNode && d.Data == tag {
			return d
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// LoadDir reads a story kept as one Markdown file per passage. Each file may
// start with YAML frontmatter; the name defaults to the file name and
// passages without a pid are numbered in natural file order.
func LoadDir(dir string, rdr *Renderer) (*Story, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	if len(matches) == 0 {
		return nil, NewParseError(dir, 0, "no passage files found").
			WithHint("passage files end in .md").
			WithCause(ErrNoStartPassage)
	}
	sort.Sort(natural.StringSlice(matches))

	type entry struct {
		file string
		fm   *Frontmatter
		body string
	}
	var (
		entries []entry
		used    = map[int]bool{}
		errs    error
	)
	for _, file := range matches {
		content, err := os.ReadFile(file)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to read %s: %w", file, err))
			continue
		}
		fm, body, err := extractFrontmatter(file, content)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if fm.PID > 0 {
			used[fm.PID] = true
		}
		entries = append(entries, entry{file: file, fm: fm, body: body})
	}
	if errs != nil {
		return nil, errs
	}

	var (
		passages []*Passage
		start    int
		next     = 1
	)
	for _, e := range entries {
		id := e.fm.PID
		if id <= 0 {
			for used[next] {
				next++
			}
			id = next
			used[id] = true
		}
		name := e.fm.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(e.file), filepath.Ext(e.file))
		}
		p, err := NewPassage(rdr, id, name, e.fm.Tags, e.body)
		if err != nil {
			return nil, err
		}
		if e.fm.Start {
			if start != 0 {
				return nil, NewParseError(e.file, 1, "more than one start passage").
					WithPassage(name).
					WithHint("set start: true on a single passage")
			}
			start = id
		}
		passages = append(passages, p)
	}

	return NewStory(filepath.Base(filepath.Clean(dir)), start, passages)
}

// extractFrontmatter splits YAML frontmatter from the passage body.
func extractFrontmatter(file string, content []byte) (*Frontmatter, string, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, string(content), nil
	}

	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		if !bytes.HasSuffix(content, []byte("\n---")) {
			return nil, "", NewParseError(file, 1, "unclosed frontmatter").
				WithHint("close the frontmatter with a line containing only ---")
		}
		endIdx = len(content) - 4 - len("\n---")
	}

	yamlContent := content[4 : 4+endIdx]
	remaining := ""
	if rest := 4 + endIdx + 5; rest < len(content) {
		remaining = string(content[rest:])
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return nil, "", NewParseError(file, 2, "invalid frontmatter").WithCause(err)
	}
	return &fm, remaining, nil
}

// Load reads a story from a Twine HTML file or a passage directory.
func Load(path string, rdr *Renderer) (*Story, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open story: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path, rdr)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open story: %w", err)
	}
	defer f.Close()

	story, err := ParseHTML(f, rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return story, nil
}
