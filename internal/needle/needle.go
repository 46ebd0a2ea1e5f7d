// Package needle implements the needle matcher: loading a reference image
// and its regions of interest from a directory, and comparing a live
// framebuffer against it under a similarity threshold.
package needle

import (
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/autotestd/autotestd/internal/logging"
	"github.com/autotestd/autotestd/internal/pixbuf"
)

var log = logging.L("needle")

// ClickPoint is a hot-spot relative to its area's top-left corner.
type ClickPoint struct {
	Left int `json:"left"`
	Top  int `json:"top"`
}

// Area is one region of interest within a needle image, with an optional
// click hot-spot.
type Area struct {
	Type   string      `json:"type"`
	Left   int         `json:"left"`
	Top    int         `json:"top"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Click  *ClickPoint `json:"click,omitempty"`
}

// Config is the on-disk <tag>.json shape.
type Config struct {
	Area       []Area   `json:"area"`
	Properties []string `json:"properties"`
	Tags       []string `json:"tags"`
}

// Needle pairs a loaded config with its reference image.
type Needle struct {
	Tag    string
	Config Config
	Image  *pixbuf.Buffer
}

// Manager loads needles by tag from a directory.
type Manager struct {
	Dir string
}

// NewManager constructs a manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir}
}

// Load reads <dir>/<tag>.png and <dir>/<tag>.json. Returns (nil, false) if
// either file is missing or malformed — the caller (CheckScreen's polling
// loop) treats a missing needle as "not ready yet", not a hard error.
func (m *Manager) Load(tag string) (*Needle, bool) {
	imgPath := filepath.Join(m.Dir, tag+".png")
	jsonPath := filepath.Join(m.Dir, tag+".json")

	imgFile, err := os.Open(imgPath)
	if err != nil {
		return nil, false
	}
	defer imgFile.Close()

	img, err := png.Decode(imgFile)
	if err != nil {
		return nil, false
	}

	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, false
	}
	defer jsonFile.Close()

	var cfg Config
	if err := json.NewDecoder(jsonFile).Decode(&cfg); err != nil {
		return nil, false
	}

	n := &Needle{Tag: tag, Config: cfg, Image: pixbuf.FromImage(img)}
	if err := n.Validate(); err != nil {
		log.Error("needle failed validation", "tag", tag, "error", err)
		return nil, false
	}
	return n, true
}

// Cmp compares framebuffer fb against needle n. If dimensions differ,
// similarity is 0 and matched is false regardless of threshold. Otherwise,
// for each region D accumulates differing pixels and P accumulates region
// area; similarity = 1 - D/P; matched iff similarity >= threshold.
func Cmp(fb *pixbuf.Buffer, n *Needle, threshold float64) (similarity float64, matched bool) {
	if fb.Width != n.Image.Width || fb.Height != n.Image.Height {
		return 0, false
	}

	var diff, total int
	for _, area := range n.Config.Area {
		r := pixbuf.Rect{Left: area.Left, Top: area.Top, Width: area.Width, Height: area.Height}
		diff += n.Image.DiffCount(fb, r)
		total += area.Width * area.Height
	}

	if total == 0 {
		return 1, threshold <= 1
	}

	similarity = 1 - float64(diff)/float64(total)
	return similarity, similarity >= threshold
}

// FirstClickArea returns the first area with a click hot-spot set, and its
// absolute (x, y) coordinates, matching the coordinator's "pick the first
// region whose click hot-spot is set" rule.
func FirstClickArea(n *Needle) (area Area, x, y int, ok bool) {
	for _, a := range n.Config.Area {
		if a.Click != nil {
			return a, a.Left + a.Click.Left, a.Top + a.Click.Top, true
		}
	}
	return Area{}, 0, 0, false
}

// Validate checks that every region lies within the needle image's bounds.
func (n *Needle) Validate() error {
	for _, a := range n.Config.Area {
		if a.Left < 0 || a.Top < 0 || a.Left+a.Width > n.Image.Width || a.Top+a.Height > n.Image.Height {
			return fmt.Errorf("needle %q: area out of bounds: %+v", n.Tag, a)
		}
	}
	return nil
}
