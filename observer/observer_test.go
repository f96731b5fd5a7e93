package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host/memdoc"
)

// collector accumulates delivered batches.
type collector struct {
	batches [][]Report
}

func (c *collector) deliver(reports []Report) {
	c.batches = append(c.batches, reports)
}

func (c *collector) lastReport(t *testing.T) Report {
	t.Helper()
	require.NotEmpty(t, c.batches)
	batch := c.batches[len(c.batches)-1]
	require.NotEmpty(t, batch)
	return batch[len(batch)-1]
}

func TestObserveEmitsFirstReport(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	step := doc.NewNode(".step", geom.FromRect(0, 900, 600, 300))

	var c collector
	reg, err := New(doc, Options{}, c.deliver)
	require.NoError(t, err)

	reg.Observe(step)
	require.Len(t, c.batches, 1, "first-ever report is always emitted")
	rep := c.lastReport(t)
	assert.False(t, rep.IsIntersecting, "step starts below the viewport")

	// Observing the same element again is a no-op.
	reg.Observe(step)
	assert.Len(t, c.batches, 1)
	assert.Equal(t, 1, reg.Size())
}

func TestThresholdCrossingReports(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	step := doc.NewNode(".step", geom.FromRect(0, 900, 600, 300))

	var c collector
	reg, err := New(doc, Options{Thresholds: geom.ThresholdSet{0}}, c.deliver)
	require.NoError(t, err)
	reg.Observe(step)
	require.Len(t, c.batches, 1)

	// Scroll so 100px of the step is visible: -1 -> 1/3 crosses 0.
	doc.Advance(200 * time.Millisecond)
	doc.SetScrollY(400)
	require.Len(t, c.batches, 2)
	rep := c.lastReport(t)
	assert.True(t, rep.IsIntersecting)
	assert.InDelta(t, 1.0/3.0, rep.Ratio, 1e-9)

	// A bit more visible, but no threshold between 1/3 and 1/2: silent.
	doc.Advance(200 * time.Millisecond)
	doc.SetScrollY(450)
	assert.Len(t, c.batches, 2)

	// Back out of view: 1/2 -> -1 crosses 0 again (symmetry).
	doc.Advance(200 * time.Millisecond)
	doc.SetScrollY(0)
	require.Len(t, c.batches, 3)
	assert.False(t, c.lastReport(t).IsIntersecting)
}

func TestRecomputeThrottleCoalesces(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	step := doc.NewNode(".step", geom.FromRect(0, 900, 600, 300))

	var c collector
	reg, err := New(doc, Options{Thresholds: geom.ThresholdSet{0, 0.25, 0.5, 0.75, 1}}, c.deliver)
	require.NoError(t, err)
	reg.Observe(step)
	require.Len(t, c.batches, 1)

	// First signal after a quiet period recomputes immediately.
	doc.Advance(200 * time.Millisecond)
	doc.SetScrollY(400)
	require.Len(t, c.batches, 2)

	// Two more signals inside the interval coalesce into one trailing
	// recompute that sees only the final position.
	doc.SetScrollY(0)
	doc.SetScrollY(480)
	assert.Len(t, c.batches, 2, "recomputes inside the interval are deferred")

	doc.Advance(150 * time.Millisecond)
	require.Len(t, c.batches, 3)
	rep := c.lastReport(t)
	assert.InDelta(t, 0.6, rep.Ratio, 1e-9, "trailing recompute reads the final scroll position")
}

func TestZeroTargetsStopsMonitoring(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	step := doc.NewNode(".step", geom.FromRect(0, 900, 600, 300))

	var c collector
	reg, err := New(doc, Options{}, c.deliver)
	require.NoError(t, err)

	assert.Equal(t, 0, doc.SubscriberCount(), "no monitoring before the first target")
	reg.Observe(step)
	assert.Equal(t, 1, doc.SubscriberCount())

	reg.Unobserve(step)
	assert.Equal(t, 0, doc.SubscriberCount(), "last target released the subscription")

	reg.Observe(step)
	assert.Equal(t, 1, doc.SubscriberCount())
	reg.Disconnect()
	assert.Equal(t, 0, doc.SubscriberCount())
	assert.Equal(t, 0, reg.Size())
}

func TestDetachedTargetDegenerates(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	step := doc.NewNode(".step", geom.FromRect(0, 100, 600, 300))

	var c collector
	reg, err := New(doc, Options{}, c.deliver)
	require.NoError(t, err)
	reg.Observe(step)
	require.True(t, c.lastReport(t).IsIntersecting)

	step.SetDetached(true)
	doc.Advance(200 * time.Millisecond)
	doc.Mutate()

	rep := c.lastReport(t)
	assert.False(t, rep.IsIntersecting, "unreadable geometry is treated as not intersecting")
	assert.True(t, rep.TargetRect.Empty())
}

func TestAncestorClipping(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	clip := doc.NewNode(".clip", geom.FromRect(0, 800, 600, 200))
	clip.SetClips(true)
	step := doc.NewNode(".step", geom.FromRect(0, 800, 600, 400))
	step.SetParent(clip)

	var c collector
	reg, err := New(doc, Options{Thresholds: geom.ThresholdSet{0, 0.5}}, c.deliver)
	require.NoError(t, err)
	reg.Observe(step)

	doc.Advance(200 * time.Millisecond)
	doc.SetScrollY(400)

	rep := c.lastReport(t)
	require.True(t, rep.IsIntersecting)
	assert.InDelta(t, 0.5, rep.Ratio, 1e-9,
		"only the half inside the clipping ancestor counts")

	// A non-rendered ancestor removes the intersection entirely.
	clip.SetRendered(false)
	doc.Advance(200 * time.Millisecond)
	doc.Mutate()
	assert.False(t, c.lastReport(t).IsIntersecting)
}

func TestRootElementWithMargin(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	root := doc.NewNode("#root", geom.FromRect(0, 0, 600, 600))
	step := doc.NewNode(".step", geom.FromRect(0, 650, 600, 100))

	var c collector
	reg, err := New(doc, Options{
		Root:       root,
		RootMargin: geom.PxMargin(0, 0, 100, 0),
	}, c.deliver)
	require.NoError(t, err)
	reg.Observe(step)

	rep := c.lastReport(t)
	assert.True(t, rep.IsIntersecting,
		"bottom margin extends the root past the step's top edge")
	assert.InDelta(t, 0.5, rep.Ratio, 1e-9)
}

func TestInvalidThresholdIsConfigError(t *testing.T) {
	doc := memdoc.New(800, 600, 2000)
	_, err := New(doc, Options{Thresholds: geom.ThresholdSet{1.2}}, func([]Report) {})
	assert.Error(t, err)
}
