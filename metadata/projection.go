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
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/spatialmodel/vdc/vdcerr"
)

// SR parses the collection's Proj4 map-projection string. Collections
// without a projection return NotAvailable.
func (md *Metadata) SR() (*proj.SR, error) {
	if md.projection == "" {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "metadata: collection carries no map projection")
	}
	sr, err := proj.Parse(md.projection)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "metadata: parse projection %q", md.projection)
	}
	return sr, nil
}

// HorizontalBounds returns the horizontal bounding box of one timestep in
// the collection's native projected coordinates, or reprojected to dst
// when dst is non-nil.
func (md *Metadata) HorizontalBounds(ts int, dst *proj.SR) (*geom.Bounds, error) {
	t, err := md.timestep(ts)
	if err != nil {
		return nil, err
	}
	box := geom.Polygon{{
		{X: t.Extents[0], Y: t.Extents[1]},
		{X: t.Extents[3], Y: t.Extents[1]},
		{X: t.Extents[3], Y: t.Extents[4]},
		{X: t.Extents[0], Y: t.Extents[4]},
		{X: t.Extents[0], Y: t.Extents[1]},
	}}
	if dst == nil {
		return box.Bounds(), nil
	}
	sr, err := md.SR()
	if err != nil {
		return nil, err
	}
	trans, err := sr.NewTransform(dst)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: projection transform")
	}
	g, err := box.Transform(trans)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "metadata: reproject extents")
	}
	return g.Bounds(), nil
}
