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

package metadata

import (
	"encoding/xml"

	"github.com/spatialmodel/vdc/vdcerr"
)

// The master document shape. Fixed-size array fields of the public types
// travel as repeated child elements here, since encoding/xml only
// unmarshals repetition into slices.

type masterXML struct {
	XMLName    xml.Name       `xml:"vdc"`
	Version    int            `xml:"version,attr"`
	VDCType    int            `xml:"type,attr"`
	Dims       []int          `xml:"dimensions>d"`
	BrickSize  []int          `xml:"bricksize>d"`
	NumLevels  int            `xml:"numlevels"`
	CRatios    []int          `xml:"cratios>c"`
	Wavelet    string         `xml:"wavelet"`
	Boundary   BoundaryMode   `xml:"boundary"`
	GridType   GridType       `xml:"gridtype"`
	Projection string         `xml:"mapprojection,omitempty"`
	Periodic   []bool         `xml:"periodic>axis"`
	Variables  []*variableXML `xml:"variables>variable"`
	Timesteps  []*timestepXML `xml:"timesteps>timestep"`
	Attrs      Attributes     `xml:"attributes"`
}

type variableXML struct {
	Name         string      `xml:"name,attr"`
	Orientation  Orientation `xml:"orientation,attr"`
	Type         string      `xml:"type,attr"`
	Compressed   bool        `xml:"compressed,attr"`
	CoordVars    []string    `xml:"coordvar,omitempty"`
	MissingValue *float64    `xml:"missing,omitempty"`
	PerTSMissing []TSMissing `xml:"tsmissing,omitempty"`
	Staggered    []bool      `xml:"staggered>axis"`
	Attrs        Attributes  `xml:"attributes"`
	Stats        []VarStats  `xml:"stats,omitempty"`
}

type timestepXML struct {
	UserTime  float64    `xml:"usertime"`
	Stamp     string     `xml:"stamp,omitempty"`
	Extents   []float64  `xml:"extents>e"`
	Attrs     Attributes `xml:"attributes"`
	HasCoords bool       `xml:"hascoords,attr,omitempty"`
}

func (md *Metadata) toXML() *masterXML {
	doc := &masterXML{
		Version:    md.version,
		VDCType:    md.vdcType,
		Dims:       md.dims[:],
		BrickSize:  md.brickSize[:],
		NumLevels:  md.numLevels,
		CRatios:    md.cratios,
		Wavelet:    md.wavelet,
		Boundary:   md.boundary,
		GridType:   md.gridType,
		Projection: md.projection,
		Periodic:   md.periodic[:],
		Attrs:      md.attrs,
	}
	for _, v := range md.vars {
		doc.Variables = append(doc.Variables, &variableXML{
			Name:         v.Name,
			Orientation:  v.Orientation,
			Type:         v.Type,
			Compressed:   v.Compressed,
			CoordVars:    v.CoordVars,
			MissingValue: v.MissingValue,
			PerTSMissing: v.PerTSMissing,
			Staggered:    v.Staggered[:],
			Attrs:        v.Attrs,
			Stats:        v.Stats,
		})
	}
	for _, ts := range md.timesteps {
		doc.Timesteps = append(doc.Timesteps, &timestepXML{
			UserTime:  ts.UserTime,
			Stamp:     ts.Stamp,
			Extents:   ts.Extents[:],
			Attrs:     ts.Attrs,
			HasCoords: ts.HasCoords,
		})
	}
	return doc
}

func (doc *masterXML) toMetadata() (*Metadata, error) {
	md := &Metadata{
		version:    doc.Version,
		vdcType:    doc.VDCType,
		numLevels:  doc.NumLevels,
		cratios:    doc.CRatios,
		wavelet:    doc.Wavelet,
		boundary:   doc.Boundary,
		gridType:   doc.GridType,
		projection: doc.Projection,
		attrs:      doc.Attrs,
		varIdx:     make(map[string]int),
	}
	if err := fill3Int(md.dims[:], doc.Dims, "dimensions"); err != nil {
		return nil, err
	}
	if err := fill3Int(md.brickSize[:], doc.BrickSize, "bricksize"); err != nil {
		return nil, err
	}
	// Periodic flags default to false when absent.
	for i := 0; i < len(doc.Periodic) && i < 3; i++ {
		md.periodic[i] = doc.Periodic[i]
	}
	for i, v := range doc.Variables {
		pv := &Variable{
			Name:         v.Name,
			Orientation:  v.Orientation,
			Type:         v.Type,
			Compressed:   v.Compressed,
			CoordVars:    v.CoordVars,
			MissingValue: v.MissingValue,
			PerTSMissing: v.PerTSMissing,
			Attrs:        v.Attrs,
			Stats:        v.Stats,
		}
		for j := 0; j < len(v.Staggered) && j < 3; j++ {
			pv.Staggered[j] = v.Staggered[j]
		}
		if _, dup := md.varIdx[pv.Name]; dup {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "duplicate variable %s", pv.Name)
		}
		md.varIdx[pv.Name] = i
		md.vars = append(md.vars, pv)
	}
	for _, ts := range doc.Timesteps {
		pt := &Timestep{
			UserTime:  ts.UserTime,
			Stamp:     ts.Stamp,
			Attrs:     ts.Attrs,
			HasCoords: ts.HasCoords,
		}
		if len(ts.Extents) == 6 {
			copy(pt.Extents[:], ts.Extents)
		}
		md.timesteps = append(md.timesteps, pt)
	}
	return md, nil
}

func fill3Int(dst []int, src []int, what string) error {
	if len(src) != 3 {
		return vdcerr.Wrap(vdcerr.Corrupt, "%s holds %d values, want 3", what, len(src))
	}
	copy(dst, src)
	return nil
}
