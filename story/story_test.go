package story

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStory = `---
title: Ocean Depths
scroller:
  offset: 0.7
  progress: true
  threshold: 8
  once: true
---

A short intro paragraph.

## Surface

Sunlight zone, down to 200m.

## Twilight

` + "```" + `
## not a step, just a code fence
` + "```" + `

Dim light only.

## Midnight

No light at all.
`

func TestParseStory(t *testing.T) {
	st, err := Parse("ocean", []byte(sampleStory))
	require.NoError(t, err)

	assert.Equal(t, "ocean", st.ID)
	assert.Equal(t, "Ocean Depths", st.Title)
	require.NotNil(t, st.Options.Offset)
	assert.Equal(t, 0.7, *st.Options.Offset.Fraction())
	assert.True(t, st.Options.Progress)
	assert.Equal(t, 8, st.Options.Threshold)
	assert.True(t, st.Options.Once)
	assert.Nil(t, st.Options.Order, "unset order stays nil so the engine default applies")

	assert.Contains(t, st.IntroHTML, "A short intro paragraph.")

	require.Len(t, st.Steps, 3)
	assert.Equal(t, "Surface", st.Steps[0].Title)
	assert.Equal(t, "Twilight", st.Steps[1].Title)
	assert.Equal(t, "Midnight", st.Steps[2].Title)
	assert.Equal(t, 1, st.Steps[1].Index)
	assert.Contains(t, st.Steps[1].HTML, "not a step, just a code fence",
		"headings inside fences stay in the surrounding step")
	assert.Contains(t, st.Steps[0].HTML, "Sunlight zone")
}

func TestParseStoryWithoutFrontmatter(t *testing.T) {
	st, err := Parse("bare", []byte("## Only Step\n\nBody.\n"))
	require.NoError(t, err)
	assert.Equal(t, "bare", st.Title, "title falls back to the story ID")
	assert.Nil(t, st.Options.Offset)
	require.Len(t, st.Steps, 1)
}

func TestParseStoryPercentOffset(t *testing.T) {
	st, err := Parse("pct", []byte("---\nscroller:\n  offset: 35%\n---\n## Step\nbody\n"))
	require.NoError(t, err)
	require.NotNil(t, st.Options.Offset)
	assert.InDelta(t, 0.35, *st.Options.Offset.Fraction(), 1e-9)
}

func TestParseStoryErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{
			name:    "unterminated frontmatter",
			source:  "---\ntitle: x\n## Step\n",
			wantErr: "unterminated",
		},
		{
			name:    "invalid yaml",
			source:  "---\ntitle: [\n---\n## Step\n",
			wantErr: "frontmatter",
		},
		{
			name:    "offset out of range",
			source:  "---\nscroller:\n  offset: 1.5\n---\n## Step\n",
			wantErr: "outside [0,1]",
		},
		{
			name:    "pixel offset",
			source:  "---\nscroller:\n  offset: 250px\n---\n## Step\n",
			wantErr: "not pixels",
		},
		{
			name:    "unparseable offset string",
			source:  "---\nscroller:\n  offset: tall\n---\n## Step\n",
			wantErr: "pixels or percent",
		},
		{
			name:    "no steps",
			source:  "just prose, no headings\n",
			wantErr: "no steps",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad", []byte(tt.source))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-second.md"), []byte("## S\nx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-first.md"), []byte("## S\nx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	stories, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "a-first", stories[0].ID)
	assert.Equal(t, "b-second", stories[1].ID)
}

func TestLoadDirPropagatesParseError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("---\nnever closed\n"), 0o644))
	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.md")
}
