package commands

import (
	"fmt"
	"strings"
	"time"

	scrolly "github.com/yantonsoup/d3-playground"
	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host/memdoc"
	"github.com/yantonsoup/d3-playground/story"
)

// Synthetic layout for simulation: a laptop-ish viewport and one 400px
// step region per story step, 50px apart, below an intro screen.
const (
	simViewportW = 800
	simViewportH = 600
	simStepH     = 400
	simStepPitch = 450
	simFirstStep = 1000
)

// SimulateCommand parses one story, lays its steps out in an in-memory
// document and prints every event a full scroll-through produces. It is the
// quickest way to check what a story's options actually do.
func SimulateCommand(args []string) error {
	var path string
	downOnly := false
	for _, arg := range args {
		if arg == "--down-only" {
			downOnly = true
		} else if !strings.HasPrefix(arg, "-") {
			path = arg
		}
	}
	if path == "" {
		return fmt.Errorf("usage: scrolly simulate <story.md> [--down-only]")
	}

	st, err := story.ParseFile(path)
	if err != nil {
		return err
	}

	n := len(st.Steps)
	contH := float64(n*simStepPitch - (simStepPitch - simStepH))
	pageH := simFirstStep + contH + simViewportH

	doc := memdoc.New(simViewportW, simViewportH, pageH)
	doc.NewNode("#scroll", geom.FromRect(0, simFirstStep, 600, contH))
	doc.NewNode(".graphic", geom.FromRect(0, simFirstStep, 600, simViewportH))
	for i := 0; i < n; i++ {
		doc.NewNode(".step", geom.FromRect(0, simFirstStep+float64(i*simStepPitch), 600, simStepH))
	}

	s, err := scrolly.New(doc, scrolly.Config{
		Container: "#scroll",
		Graphic:   ".graphic",
		Step:      ".step",
		Offset:    st.Options.Offset.Fraction(),
		Progress:  st.Options.Progress,
		Threshold: st.Options.Threshold,
		Order:     st.Options.Order,
		Once:      st.Options.Once,
	})
	if err != nil {
		return err
	}
	defer s.Destroy()

	stepTitle := func(i int) string {
		if i >= 0 && i < n {
			return st.Steps[i].Title
		}
		return ""
	}
	pos := func() float64 { return doc.ScrollY() }

	s.OnStepEnter(func(e scrolly.StepEvent) {
		fmt.Printf("%6.0fpx  enter     step %d %-24q %s\n", pos(), e.Index, stepTitle(e.Index), e.Direction)
	})
	s.OnStepExit(func(e scrolly.StepEvent) {
		fmt.Printf("%6.0fpx  exit      step %d %-24q %s\n", pos(), e.Index, stepTitle(e.Index), e.Direction)
	})
	s.OnStepProgress(func(e scrolly.ProgressEvent) {
		fmt.Printf("%6.0fpx  progress  step %d %.3f\n", pos(), e.Index, e.Progress)
	})
	s.OnContainerEnter(func(e scrolly.ContainerEvent) {
		fmt.Printf("%6.0fpx  enter     container %s\n", pos(), e.Direction)
	})
	s.OnContainerExit(func(e scrolly.ContainerEvent) {
		fmt.Printf("%6.0fpx  exit      container %s\n", pos(), e.Direction)
	})

	fmt.Printf("%s: %d steps, trigger line at %.0fpx\n\n", st.Title, n, s.TriggerLinePx())

	maxScroll := pageH - simViewportH
	sweep(doc, 0, maxScroll)
	if !downOnly {
		fmt.Println()
		sweep(doc, maxScroll, 0)
	}
	return nil
}

func sweep(doc *memdoc.Doc, from, to float64) {
	by := 10.0
	if to < from {
		by = -10.0
	}
	for y := from; (by > 0 && y <= to) || (by < 0 && y >= to); y += by {
		doc.Advance(150 * time.Millisecond)
		doc.SetScrollY(y)
	}
	doc.Advance(150 * time.Millisecond)
}
