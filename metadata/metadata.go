/*
Copyright © 2024 the VDC authors.
This file is part of VDC.

VDC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

VDC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with VDC.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package metadata is the master directory for a volume data collection:
// grid geometry, brick size, compression parameters, the variable and
// timestep lists, attribute dictionaries and write-time statistics. The
// master document is versioned XML; bulky per-timestep coordinate arrays
// live in a NetCDF sidecar next to it.
//
// A Metadata is mutable through its typed setters until EndDefine is
// called, after which the schema is frozen and only data statistics may
// change. Read-side instances created by Initialize are frozen from the
// start.
package metadata

import (
	"encoding/xml"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vdc/vdcerr"
)

var log = logrus.WithField("component", "metadata")

// SchemaVersion is written into every master file; readers refuse files
// with a newer version.
const SchemaVersion = 2

// GridType selects the coordinate system of a collection.
type GridType string

const (
	GridRegular   GridType = "regular"
	GridStretched GridType = "stretched"
	GridLayered   GridType = "layered"
)

// Orientation describes the plane (or volume) a variable is sampled on.
type Orientation string

const (
	Var3D Orientation = "3d"
	VarXY Orientation = "xy"
	VarXZ Orientation = "xz"
	VarYZ Orientation = "yz"
)

// BoundaryMode declares how bricks at the max edge of a non-brick-aligned
// grid are padded. The mode is recorded here so readers can distinguish
// stored padding from data.
type BoundaryMode string

const (
	PadZero   BoundaryMode = "zero"
	PadMirror BoundaryMode = "mirror"
)

// Attributes is the free-form attribute dictionary carried at the root,
// per-variable and per-timestep: text, integer and floating entries.
type Attributes struct {
	Text  []TextAttr  `xml:"text,omitempty"`
	Long  []LongAttr  `xml:"long,omitempty"`
	Float []FloatAttr `xml:"double,omitempty"`
}

type TextAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type LongAttr struct {
	Name   string  `xml:"name,attr"`
	Values []int64 `xml:"v"`
}

type FloatAttr struct {
	Name   string    `xml:"name,attr"`
	Values []float64 `xml:"v"`
}

// SetText adds or replaces a text attribute.
func (a *Attributes) SetText(name, value string) {
	for i := range a.Text {
		if a.Text[i].Name == name {
			a.Text[i].Value = value
			return
		}
	}
	a.Text = append(a.Text, TextAttr{Name: name, Value: value})
}

// GetText returns a text attribute's value and whether it is present.
func (a *Attributes) GetText(name string) (string, bool) {
	for _, t := range a.Text {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// SetLong adds or replaces an integer attribute.
func (a *Attributes) SetLong(name string, values []int64) {
	for i := range a.Long {
		if a.Long[i].Name == name {
			a.Long[i].Values = values
			return
		}
	}
	a.Long = append(a.Long, LongAttr{Name: name, Values: values})
}

// SetFloat adds or replaces a floating-point attribute.
func (a *Attributes) SetFloat(name string, values []float64) {
	for i := range a.Float {
		if a.Float[i].Name == name {
			a.Float[i].Values = values
			return
		}
	}
	a.Float = append(a.Float, FloatAttr{Name: name, Values: values})
}

// Variable is one named scalar field's schema entry.
type Variable struct {
	Name        string
	Orientation Orientation
	// Type is the numeric storage type, e.g. "float32".
	Type string
	// Compressed is false for variables stored raw (coordinate variables
	// typically are).
	Compressed bool
	// CoordVars references the coordinate variables this variable is
	// sampled against, e.g. ELEVATION for layered grids.
	CoordVars []string
	// MissingValue, if non-nil, is the collection-wide sentinel for this
	// variable.
	MissingValue *float64
	// PerTSMissing overrides MissingValue for individual timesteps.
	PerTSMissing []TSMissing
	// Staggered flags per-axis half-cell offsets of the source data; the
	// region engine unstaggers on write, so stored fields are always
	// cell-centered and readers must not undo it.
	Staggered [3]bool
	Attrs     Attributes
	// Stats holds write-time per-timestep data min/max.
	Stats []VarStats
}

type TSMissing struct {
	Timestep int     `xml:"ts,attr"`
	Value    float64 `xml:"value"`
}

// VarStats is the per-timestep data range recorded when a variable is
// written.
type VarStats struct {
	Timestep int     `xml:"ts,attr"`
	Min      float64 `xml:"min"`
	Max      float64 `xml:"max"`
}

// MissingAt returns the missing-value sentinel in effect for timestep ts,
// or ok == false if the variable has none.
func (v *Variable) MissingAt(ts int) (float64, bool) {
	for _, m := range v.PerTSMissing {
		if m.Timestep == ts {
			return m.Value, true
		}
	}
	if v.MissingValue != nil {
		return *v.MissingValue, true
	}
	return 0, false
}

// Is3D reports whether the variable spans all three axes.
func (v *Variable) Is3D() bool { return v.Orientation == Var3D }

// Timestep is one entry in the collection's monotonically ordered time
// sequence.
type Timestep struct {
	UserTime float64
	// Stamp is an optional textual timestamp.
	Stamp string
	// Extents is the projected-coordinate bounding box
	// (xmin,ymin,zmin,xmax,ymax,zmax), cached at write time.
	Extents [6]float64
	Attrs   Attributes
	// HasCoords records whether per-axis stretched-grid coordinate
	// arrays for this timestep are present in the NetCDF sidecar.
	HasCoords bool
}

// Metadata owns a collection's schema from construction until Save; a
// reader obtains an immutable instance through Initialize.
type Metadata struct {
	version    int
	vdcType    int
	dims       [3]int
	brickSize  [3]int
	numLevels  int
	cratios    []int
	wavelet    string
	boundary   BoundaryMode
	gridType   GridType
	projection string
	periodic   [3]bool
	vars       []*Variable
	timesteps  []*Timestep
	attrs      Attributes

	varIdx  map[string]int
	path    string
	defined bool // EndDefine called; schema frozen
	coords  *CoordStore
}

// New starts a writable metadata object for a collection with the given
// grid dimensions, brick size and compression configuration. vdcType is 1
// (level-only addressing) or 2 (level and LOD).
func New(dims, brickSize [3]int, numLevels int, cratios []int, waveletName string, vdcType int) (*Metadata, error) {
	for i := 0; i < 3; i++ {
		if dims[i] < 1 || brickSize[i] < 1 {
			return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: dims and brick size must be positive")
		}
	}
	if vdcType != 1 && vdcType != 2 {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: VDC type must be 1 or 2, got %d", vdcType)
	}
	if vdcType == 1 {
		for _, b := range brickSize {
			if b&(b-1) != 0 {
				return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: VDC-1 brick size must be a power of two, got %v", brickSize)
			}
		}
	}
	if len(cratios) == 0 || cratios[0] != 1 {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: CRatios must begin with 1")
	}
	for i := 1; i < len(cratios); i++ {
		if cratios[i] <= cratios[i-1] {
			return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: CRatios must be strictly increasing")
		}
	}
	return &Metadata{
		version:   SchemaVersion,
		vdcType:   vdcType,
		dims:      dims,
		brickSize: brickSize,
		numLevels: numLevels,
		cratios:   append([]int(nil), cratios...),
		wavelet:   waveletName,
		boundary:  PadZero,
		gridType:  GridRegular,
		varIdx:    make(map[string]int),
	}, nil
}

func (md *Metadata) checkDefine() error {
	if md.defined {
		return vdcerr.Wrap(vdcerr.InvalidParam, "metadata: schema frozen by EndDefine")
	}
	return nil
}

// SetGridType selects regular, stretched or layered coordinates.
func (md *Metadata) SetGridType(t GridType) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	md.gridType = t
	return nil
}

// SetBoundaryMode declares the edge-brick padding policy.
func (md *Metadata) SetBoundaryMode(b BoundaryMode) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	md.boundary = b
	return nil
}

// SetMapProjection records the collection's Proj4 map projection string.
func (md *Metadata) SetMapProjection(proj4 string) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	md.projection = proj4
	return nil
}

// SetPeriodic sets the independent per-axis periodic-boundary flags.
func (md *Metadata) SetPeriodic(x, y, z bool) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	md.periodic = [3]bool{x, y, z}
	return nil
}

// SetNumTimesteps sizes the timestep list; existing entries are kept.
func (md *Metadata) SetNumTimesteps(n int) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	if n < 0 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "metadata: negative timestep count")
	}
	for len(md.timesteps) < n {
		md.timesteps = append(md.timesteps, &Timestep{})
	}
	md.timesteps = md.timesteps[:n]
	return nil
}

// SetUserTime records the user time of one timestep; user times must end
// up monotonically increasing by EndDefine.
func (md *Metadata) SetUserTime(ts int, t float64) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	tsp, err := md.timestep(ts)
	if err != nil {
		return err
	}
	tsp.UserTime = t
	return nil
}

// SetTimestamp records the optional textual timestamp of one timestep.
func (md *Metadata) SetTimestamp(ts int, stamp string) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	tsp, err := md.timestep(ts)
	if err != nil {
		return err
	}
	tsp.Stamp = stamp
	return nil
}

// SetExtents records the projected bounding box of one timestep.
func (md *Metadata) SetExtents(ts int, extents [6]float64) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	tsp, err := md.timestep(ts)
	if err != nil {
		return err
	}
	tsp.Extents = extents
	return nil
}

// SetHasCoords marks a timestep as carrying stretched-grid coordinate
// arrays in the sidecar.
func (md *Metadata) SetHasCoords(ts int) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	tsp, err := md.timestep(ts)
	if err != nil {
		return err
	}
	tsp.HasCoords = true
	return nil
}

func (md *Metadata) timestep(ts int) (*Timestep, error) {
	if ts < 0 || ts >= len(md.timesteps) {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "metadata: timestep %d out of range [0,%d)", ts, len(md.timesteps))
	}
	return md.timesteps[ts], nil
}

// AddVariable registers a new variable. Registering a duplicate name
// fails with InvalidParam.
func (md *Metadata) AddVariable(v Variable) error {
	if err := md.checkDefine(); err != nil {
		return err
	}
	if v.Name == "" {
		return vdcerr.Wrap(vdcerr.InvalidParam, "metadata: variable name must not be empty")
	}
	if _, ok := md.varIdx[v.Name]; ok {
		return vdcerr.Wrap(vdcerr.InvalidParam, "metadata: variable %s already defined", v.Name)
	}
	if v.Type == "" {
		v.Type = "float32"
	}
	if v.Orientation == "" {
		v.Orientation = Var3D
	}
	md.varIdx[v.Name] = len(md.vars)
	md.vars = append(md.vars, &v)
	return nil
}

// EndDefine validates and freezes the schema: after it returns only data
// (statistics, coordinate arrays) may be written.
func (md *Metadata) EndDefine() error {
	if md.defined {
		return nil
	}
	for i := 1; i < len(md.timesteps); i++ {
		if md.timesteps[i].UserTime < md.timesteps[i-1].UserTime {
			return vdcerr.Wrap(vdcerr.Corrupt, "metadata: user times not monotonic at timestep %d", i)
		}
	}
	md.defined = true
	return nil
}

// Defined reports whether EndDefine has been called.
func (md *Metadata) Defined() bool { return md.defined }

// SetStats records the data min/max of one (variable, timestep),
// populated by the region writer on close. Allowed after EndDefine.
func (md *Metadata) SetStats(varName string, ts int, min, max float64) error {
	v, err := md.Variable(varName)
	if err != nil {
		return err
	}
	for i := range v.Stats {
		if v.Stats[i].Timestep == ts {
			v.Stats[i].Min, v.Stats[i].Max = min, max
			return nil
		}
	}
	v.Stats = append(v.Stats, VarStats{Timestep: ts, Min: min, Max: max})
	sort.Slice(v.Stats, func(i, j int) bool { return v.Stats[i].Timestep < v.Stats[j].Timestep })
	return nil
}

// RootAttrs returns the root attribute dictionary for mutation before
// EndDefine and inspection after.
func (md *Metadata) RootAttrs() *Attributes { return &md.attrs }

// Accessors.

func (md *Metadata) Dims() [3]int           { return md.dims }
func (md *Metadata) BrickSize() [3]int      { return md.brickSize }
func (md *Metadata) NumLevels() int         { return md.numLevels }
func (md *Metadata) CRatios() []int         { return append([]int(nil), md.cratios...) }
func (md *Metadata) Wavelet() string        { return md.wavelet }
func (md *Metadata) Boundary() BoundaryMode { return md.boundary }
func (md *Metadata) VDCType() int           { return md.vdcType }
func (md *Metadata) Grid() GridType         { return md.gridType }
func (md *Metadata) MapProjection() string  { return md.projection }
func (md *Metadata) Periodic() [3]bool      { return md.periodic }
func (md *Metadata) NumTimesteps() int      { return len(md.timesteps) }

// Variable looks a variable up by name.
func (md *Metadata) Variable(name string) (*Variable, error) {
	i, ok := md.varIdx[name]
	if !ok {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "metadata: no variable %s", name)
	}
	return md.vars[i], nil
}

// VariableNames returns the registered variable names in definition
// order, optionally filtered by orientation.
func (md *Metadata) VariableNames(orient ...Orientation) []string {
	var out []string
	for _, v := range md.vars {
		if len(orient) == 0 {
			out = append(out, v.Name)
			continue
		}
		for _, o := range orient {
			if v.Orientation == o {
				out = append(out, v.Name)
				break
			}
		}
	}
	return out
}

// Timestep returns timestep ts's entry.
func (md *Metadata) Timestep(ts int) (*Timestep, error) {
	return md.timestep(ts)
}

// Coords returns the NetCDF coordinate-array sidecar store, creating the
// handle lazily. The sidecar lives next to the master file.
func (md *Metadata) Coords() *CoordStore {
	if md.coords == nil {
		md.coords = &CoordStore{path: coordPath(md.path)}
	}
	return md.coords
}

func coordPath(masterPath string) string {
	if masterPath == "" {
		return ""
	}
	return masterPath + ".coord.nc"
}

// DataDir returns the directory holding the collection's brick files,
// derived from the master file path.
func (md *Metadata) DataDir() string {
	if md.path == "" {
		return ""
	}
	return md.path + "_data"
}

// TimestepDir returns the directory holding one timestep's brick files,
// resolved from the master file location. Linkage between the master and
// its data files is re-derived here at open; data files hold no
// back-pointers.
func (md *Metadata) TimestepDir(ts int) string {
	return filepath.Join(md.DataDir(), fmt.Sprintf("ts%04d", ts))
}

// Save writes the master XML document to path, rolling any existing file
// to a .bak first so an interrupted write never destroys the previous
// master. Save requires EndDefine.
func (md *Metadata) Save(path string) error {
	if !md.defined {
		return vdcerr.Wrap(vdcerr.InvalidParam, "metadata: Save before EndDefine")
	}
	out, err := xml.MarshalIndent(md.toXML(), "", "  ")
	if err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "metadata: marshal master document")
	}
	out = append([]byte(xml.Header), out...)

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return vdcerr.Wrap(vdcerr.IOError, "metadata: roll %s to .bak", path)
		}
	}
	if err := ioutil.WriteFile(path, out, 0o644); err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "metadata: write %s", path)
	}
	md.path = path
	if md.coords != nil {
		md.coords.path = coordPath(path)
	}
	log.WithField("path", path).WithField("variables", len(md.vars)).Info("saved master file")
	return nil
}

// Initialize reads a master file and returns a frozen Metadata. Each call
// creates a fresh instance; instances never observe later edits to the
// file.
func Initialize(path string) (*Metadata, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "metadata: read %s", path)
	}
	var doc masterXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "metadata: parse %s", path)
	}
	if doc.Version > SchemaVersion {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "metadata: schema version %d newer than supported %d", doc.Version, SchemaVersion)
	}
	md, err := doc.toMetadata()
	if err != nil {
		return nil, vdcerr.Wrap(err, "metadata: %s", path)
	}
	md.path = path
	md.defined = true
	for i := 1; i < len(md.timesteps); i++ {
		if md.timesteps[i].UserTime < md.timesteps[i-1].UserTime {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "metadata: user times not monotonic at timestep %d", i)
		}
	}
	return md, nil
}
