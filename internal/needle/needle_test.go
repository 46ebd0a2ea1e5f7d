package needle

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/autotestd/autotestd/internal/pixbuf"
)

func writeNeedleFixture(t *testing.T, dir, tag string, mutate func(*image.RGBA)) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, color.RGBA{A: 0xff})
		}
	}
	if mutate != nil {
		mutate(img)
	}

	f, err := os.Create(filepath.Join(dir, tag+".png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}

	jsonBody := `{
		"area": [
			{ "type": "match", "left": 0, "top": 0, "width": 5, "height": 5 }
		],
		"properties": [],
		"tags": ["` + tag + `"]
	}`
	if err := os.WriteFile(filepath.Join(dir, tag+".json"), []byte(jsonBody), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadParsesAreaAndTags(t *testing.T) {
	dir := t.TempDir()
	writeNeedleFixture(t, dir, "output", nil)

	mgr := NewManager(dir)
	n, ok := mgr.Load("output")
	if !ok {
		t.Fatal("expected needle to load")
	}
	if len(n.Config.Area) != 1 {
		t.Fatalf("expected 1 area, got %d", len(n.Config.Area))
	}
	a := n.Config.Area[0]
	if a.Type != "match" || a.Width != 5 || a.Height != 5 {
		t.Fatalf("unexpected area: %+v", a)
	}
	if len(n.Config.Tags) != 1 || n.Config.Tags[0] != "output" {
		t.Fatalf("unexpected tags: %v", n.Config.Tags)
	}
}

func TestLoadRejectsAreaOutOfImageBounds(t *testing.T) {
	dir := t.TempDir()
	writeNeedleFixture(t, dir, "output", nil)

	// Overwrite the fixture's json with an area that overruns the 5x5 image.
	jsonBody := `{
		"area": [
			{ "type": "match", "left": 0, "top": 0, "width": 10, "height": 10 }
		],
		"properties": [],
		"tags": ["output"]
	}`
	if err := os.WriteFile(filepath.Join(dir, "output.json"), []byte(jsonBody), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(dir)
	if _, ok := mgr.Load("output"); ok {
		t.Fatal("expected Load to reject an out-of-bounds area")
	}
}

func TestValidateRejectsNegativeOrigin(t *testing.T) {
	n := &Needle{
		Tag:    "bad",
		Config: Config{Area: []Area{{Left: -1, Top: 0, Width: 5, Height: 5}}},
		Image:  pixbuf.New(5, 5),
	}
	if err := n.Validate(); err == nil {
		t.Fatal("expected Validate to reject a negative origin")
	}
}

func TestLoadMissingFileReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)
	_, ok := mgr.Load("nonexistent")
	if ok {
		t.Fatal("expected Load to fail for a missing needle")
	}
}

func TestCmpIdenticalImageMatchesAtThresholdOne(t *testing.T) {
	dir := t.TempDir()
	writeNeedleFixture(t, dir, "output", nil)

	mgr := NewManager(dir)
	n, ok := mgr.Load("output")
	if !ok {
		t.Fatal("expected needle to load")
	}

	sim, matched := Cmp(n.Image, n, 1.0)
	if !matched || sim != 1.0 {
		t.Fatalf("expected exact self-match, got sim=%v matched=%v", sim, matched)
	}
}

func TestCmpDiffersOnSinglePixelMutation(t *testing.T) {
	dir := t.TempDir()
	writeNeedleFixture(t, dir, "output", nil)
	writeNeedleFixture(t, dir, "output2", func(img *image.RGBA) {
		img.Set(2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 0xff})
	})

	mgr := NewManager(dir)
	n1, _ := mgr.Load("output")
	n2, _ := mgr.Load("output2")

	sim, matched := Cmp(n1.Image, n2, 1.0)
	if matched {
		t.Fatal("expected a single differing pixel to break exact match")
	}
	if sim >= 1.0 {
		t.Fatalf("expected similarity < 1.0, got %v", sim)
	}
}

func TestCmpDimensionMismatchIsZeroSimilarity(t *testing.T) {
	dir := t.TempDir()
	writeNeedleFixture(t, dir, "output", nil)
	mgr := NewManager(dir)
	n, _ := mgr.Load("output")

	other := pixbuf.New(10, 10)
	sim, matched := Cmp(other, n, 0.0)
	if matched || sim != 0 {
		t.Fatalf("expected (0, false) on dimension mismatch, got (%v, %v)", sim, matched)
	}
}

func TestFirstClickAreaComputesAbsoluteCoordinates(t *testing.T) {
	n := &Needle{
		Config: Config{
			Area: []Area{
				{Type: "match", Left: 200, Top: 400, Width: 100, Height: 30, Click: &ClickPoint{Left: 50, Top: 15}},
			},
		},
	}

	_, x, y, ok := FirstClickArea(n)
	if !ok {
		t.Fatal("expected a click area")
	}
	if x != 250 || y != 415 {
		t.Fatalf("got (%d, %d), want (250, 415)", x, y)
	}
}

func TestFirstClickAreaNoneSetReturnsFalse(t *testing.T) {
	n := &Needle{Config: Config{Area: []Area{{Left: 0, Top: 0, Width: 5, Height: 5}}}}
	_, _, _, ok := FirstClickArea(n)
	if ok {
		t.Fatal("expected no click area")
	}
}
