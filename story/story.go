// Package story parses markdown scrolly stories: a YAML frontmatter block
// carrying the scroll-session options, an optional intro, and one step per
// second-level heading. The server renders each step's HTML into a step
// region and hands the options to the engine unchanged.
package story

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// Options mirror the engine's session configuration one to one.
type Options struct {
	Offset    *Offset `yaml:"offset"`
	Progress  bool    `yaml:"progress"`
	Threshold int     `yaml:"threshold"`
	Order     *bool   `yaml:"order"`
	Once      bool    `yaml:"once"`
	Debug     bool    `yaml:"debug"`
}

// Offset positions the trigger line as a fraction of viewport height. In
// frontmatter it is either a bare number (0.55) or a percent string
// ("55%"). Pixel lengths cannot resolve without a viewport, so they are
// rejected at parse time.
type Offset float64

func (o *Offset) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!str" {
		l, err := geom.ParseLength(value.Value)
		if err != nil {
			return err
		}
		if l.Unit != geom.UnitPercent {
			return fmt.Errorf("offset %q: use a fraction or percent, not pixels", value.Value)
		}
		*o = Offset(l.Value / 100)
		return nil
	}
	var f float64
	if err := value.Decode(&f); err != nil {
		return err
	}
	*o = Offset(f)
	return nil
}

// Fraction returns the offset in the engine's *float64 form, nil when the
// frontmatter left it unset.
func (o *Offset) Fraction() *float64 {
	if o == nil {
		return nil
	}
	f := float64(*o)
	return &f
}

type frontmatter struct {
	Title    string  `yaml:"title"`
	Scroller Options `yaml:"scroller"`
}

// Step is one unit of scrollable content.
type Step struct {
	Index int
	Title string
	HTML  string
}

// Story is one parsed scrolly story.
type Story struct {
	ID        string
	Title     string
	Options   Options
	IntroHTML string
	Steps     []Step
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ParseFile parses one story file. The story ID is the file name without
// extension.
func ParseFile(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	st, err := Parse(id, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

// Parse parses story source. Configuration problems (bad YAML, an offset
// outside [0,1], a story without steps) are returned as errors.
func Parse(id string, source []byte) (*Story, error) {
	fm, body, err := splitFrontmatter(source)
	if err != nil {
		return nil, err
	}

	var meta frontmatter
	if len(fm) > 0 {
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
	}
	if o := meta.Scroller.Offset; o != nil && (*o < 0 || *o > 1) {
		return nil, fmt.Errorf("frontmatter: offset %v outside [0,1]", *o)
	}

	st := &Story{
		ID:      id,
		Title:   meta.Title,
		Options: meta.Scroller,
	}
	if st.Title == "" {
		st.Title = id
	}

	intro, sections := splitSections(body)
	if st.IntroHTML, err = render(intro); err != nil {
		return nil, err
	}
	for i, sec := range sections {
		html, err := render(sec.body)
		if err != nil {
			return nil, err
		}
		st.Steps = append(st.Steps, Step{Index: i, Title: sec.title, HTML: html})
	}
	if len(st.Steps) == 0 {
		return nil, fmt.Errorf("story %q has no steps (## headings)", id)
	}
	return st, nil
}

// LoadDir parses every .md file in dir, sorted by file name.
func LoadDir(dir string) ([]*Story, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read story dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var stories []*Story
	for _, name := range names {
		st, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		stories = append(stories, st)
	}
	return stories, nil
}

func render(lines []string) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(strings.Join(lines, "\n")), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// markdown body.
func splitFrontmatter(source []byte) (fm []byte, body []string, err error) {
	lines := strings.Split(string(source), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, lines, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return []byte(strings.Join(lines[1:i], "\n")), lines[i+1:], nil
		}
	}
	return nil, nil, fmt.Errorf("frontmatter: unterminated --- block")
}

type section struct {
	title string
	body  []string
}

// splitSections splits the body at second-level headings, ignoring
// headings inside fenced code blocks.
func splitSections(lines []string) (intro []string, sections []section) {
	inFence := false
	current := -1
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "## ") {
			sections = append(sections, section{title: strings.TrimSpace(strings.TrimPrefix(line, "## "))})
			current = len(sections) - 1
			continue
		}
		if current == -1 {
			intro = append(intro, line)
		} else {
			sections[current].body = append(sections[current].body, line)
		}
	}
	return intro, sections
}
