package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yantonsoup/d3-playground/story"
)

// ValidateCommand parses every story in a directory (or a single file) and
// reports problems without starting a server.
func ValidateCommand(args []string) error {
	target := "."
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			target = arg
		}
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", target, err)
	}

	var paths []string
	if info.IsDir() {
		entries, err := os.ReadDir(target)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
				paths = append(paths, filepath.Join(target, e.Name()))
			}
		}
		sort.Strings(paths)
		if len(paths) == 0 {
			return fmt.Errorf("no .md files found in %s", target)
		}
	} else {
		paths = []string{target}
	}

	failures := 0
	for _, path := range paths {
		st, err := story.ParseFile(path)
		if err != nil {
			failures++
			fmt.Printf("FAIL %s\n     %v\n", path, err)
			continue
		}
		fmt.Printf("ok   %s (%q, %d steps)\n", path, st.Title, len(st.Steps))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d stories failed validation", failures, len(paths))
	}
	fmt.Printf("\n%d stories validated\n", len(paths))
	return nil
}
