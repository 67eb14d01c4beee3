package layout

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// SizeClass holds the grid constants of one layout size.
type SizeClass struct {
	EstCellWidth int `yaml:"est_cell_width"`
	Padding      int `yaml:"padding"`
	YAxisWidth   int `yaml:"y_axis_width"`
	XAxisHeight  int `yaml:"x_axis_height"`
}

// Profile configures grid geometry.
type Profile struct {
	// LargeMinWidth is the narrowest viewport that uses the Large class.
	LargeMinWidth int       `yaml:"large_min_width"`
	AspectRatio   float64   `yaml:"aspect_ratio"`
	Large         SizeClass `yaml:"large"`
	Small         SizeClass `yaml:"small"`
}

// DefaultProfile returns the built-in grid constants.
func DefaultProfile() Profile {
	return Profile{
		LargeMinWidth: 1024,
		AspectRatio:   2.15,
		Large:         SizeClass{EstCellWidth: 250, Padding: 30, YAxisWidth: 40, XAxisHeight: 20},
		Small:         SizeClass{EstCellWidth: 150, Padding: 25, YAxisWidth: 30, XAxisHeight: 14},
	}
}

// ParseProfile decodes a YAML profile. Keys that are absent keep their
// default values.
func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse layout profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks that every constant is usable.
func (p Profile) Validate() error {
	if p.LargeMinWidth <= 0 {
		return errors.New("layout profile: large_min_width must be positive")
	}
	if p.AspectRatio <= 0 {
		return errors.New("layout profile: aspect_ratio must be positive")
	}
	for name, c := range map[string]SizeClass{"large": p.Large, "small": p.Small} {
		if c.EstCellWidth <= 0 || c.Padding < 0 || c.YAxisWidth < 0 || c.XAxisHeight < 0 {
			return fmt.Errorf("layout profile: invalid %s size class", name)
		}
	}
	return nil
}

// Grid is the geometry of a small-multiples canvas.
type Grid struct {
	Width       int
	Count       int
	Large       bool
	Columns     int
	Rows        int
	CellWidth   int
	CellHeight  int
	ColWidth    int
	RowHeight   int
	Padding     int
	YAxisWidth  int
	XAxisHeight int
	TotalHeight int
}

// NewGrid lays out count cells across a viewport width wide.
func NewGrid(width, count int, p Profile) Grid {
	if width < 1 {
		width = 1
	}
	large := width >= p.LargeMinWidth
	c := p.Small
	if large {
		c = p.Large
	}

	cols := max(1, width/(c.EstCellWidth+c.Padding))
	cellW := max(1, (width-c.Padding*(cols+1))/cols)
	cellH := max(1, int(math.Floor(float64(cellW)/p.AspectRatio)))
	rows := (count + cols - 1) / cols

	g := Grid{
		Width:       width,
		Count:       count,
		Large:       large,
		Columns:     cols,
		Rows:        rows,
		CellWidth:   cellW,
		CellHeight:  cellH,
		ColWidth:    cellW + c.Padding,
		RowHeight:   cellH + c.XAxisHeight + c.Padding,
		Padding:     c.Padding,
		YAxisWidth:  c.YAxisWidth,
		XAxisHeight: c.XAxisHeight,
	}
	g.TotalHeight = rows * g.RowHeight
	return g
}

// CellOrigin returns the top-left canvas position of cell i.
func (g Grid) CellOrigin(i int) (x, y int) {
	row, col := i/g.Columns, i%g.Columns
	return g.YAxisWidth + col*g.ColWidth, row * g.RowHeight
}

// CellAt returns the cell under canvas point (x, y) and the point relative
// to that cell's plot area.
func (g Grid) CellAt(x, y int) (index, localX, localY int, ok bool) {
	if x < g.YAxisWidth || y < 0 {
		return 0, 0, 0, false
	}
	col := (x - g.YAxisWidth) / g.ColWidth
	row := y / g.RowHeight
	if col >= g.Columns {
		return 0, 0, 0, false
	}
	index = row*g.Columns + col
	if index >= g.Count {
		return 0, 0, 0, false
	}
	ox, oy := g.CellOrigin(index)
	localX, localY = x-ox, y-oy
	if localX >= g.CellWidth || localY >= g.CellHeight {
		return 0, 0, 0, false
	}
	return index, localX, localY, true
}
