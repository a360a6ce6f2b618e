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

package vdcutil

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/vdc/datamgr"
	"github.com/spatialmodel/vdc/metadata"
	"github.com/spatialmodel/vdc/region"
	"github.com/spatialmodel/vdc/source"
	"github.com/spatialmodel/vdc/vdcerr"
)

// AdaptorFunc opens one external simulation output as a data collection.
type AdaptorFunc func(path string) (source.Collection, error)

// RegisterAdaptor attaches a converter subcommand for one source format:
// "vdccreate <name> <input> <master.vdf>". The adaptor supplies the
// collection; everything else is the shared conversion loop.
func (cfg *Cfg) RegisterAdaptor(name, short string, open AdaptorFunc) {
	cmd := &cobra.Command{
		Use:   name + " <input> <master.vdf>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.GetBool("quiet") {
				logrus.SetLevel(logrus.ErrorLevel)
			}
			opts := optionsFromCfg(cfg)
			col, err := open(args[0])
			if err != nil {
				return err
			}
			md, err := CreateMaster(col, opts, args[1])
			if err != nil {
				return err
			}
			return Convert(col, md, opts, args[1])
		},
	}
	cfg.Root.AddCommand(cmd)
}

// ConvertOptions collects the converter flags after validation.
type ConvertOptions struct {
	Vars     []string
	NumTS    int
	StartTS  int
	Level    int
	LOD      int
	NThreads int

	// Collection parameters used when creating a new master file.
	BrickSide int
	CRatios   []int
	Wavelet   string
	VDCType   int
}

// optionsFromCfg reads the persistent converter flags.
func optionsFromCfg(cfg *Cfg) ConvertOptions {
	return ConvertOptions{
		Vars:      cfg.GetStringSlice("vars"),
		NumTS:     cfg.GetInt("numts"),
		StartTS:   cfg.GetInt("startts"),
		Level:     cfg.GetInt("level"),
		LOD:       cfg.GetInt("lod"),
		NThreads:  cfg.GetInt("nthreads"),
		BrickSide: 32,
		CRatios:   []int{1, 10, 100, 500},
		Wavelet:   "bior3.3",
		VDCType:   2,
	}
}

// CreateMaster builds and saves a master file describing the collection a
// source adaptor advertises.
func CreateMaster(col source.Collection, opts ConvertOptions, masterPath string) (*metadata.Metadata, error) {
	nx, ny, nz, err := col.Dims()
	if err != nil {
		return nil, err
	}
	side := opts.BrickSide
	levels := 0
	for s := side; s > 1; s >>= 1 {
		levels++
	}
	md, err := metadata.New([3]int{nx, ny, nz}, [3]int{side, side, side},
		levels, opts.CRatios, opts.Wavelet, opts.VDCType)
	if err != nil {
		return nil, err
	}
	md.SetGridType(col.GridType())
	if p := col.MapProjection(); p != "" {
		md.SetMapProjection(p)
	}

	times := col.UserTimes()
	numTS := len(times)
	if opts.NumTS >= 0 && opts.StartTS+opts.NumTS < numTS {
		numTS = opts.StartTS + opts.NumTS
	}
	md.SetNumTimesteps(numTS)
	for ts := 0; ts < numTS; ts++ {
		md.SetUserTime(ts, times[ts].Value())
		md.SetTimestamp(ts, col.Timestamp(ts))
		ext, err := col.Extents(ts)
		if err != nil {
			return nil, err
		}
		md.SetExtents(ts, ext)
	}

	for _, name := range selectVars(col, opts.Vars) {
		v := metadata.Variable{Name: name, Orientation: orientationOf(col, name), Compressed: true}
		if mv, ok := col.MissingValue(name); ok {
			v.MissingValue = &mv
		}
		v.Staggered = col.Staggered(name)
		if err := md.AddVariable(v); err != nil {
			return nil, err
		}
	}
	if err := md.EndDefine(); err != nil {
		return nil, err
	}
	if err := md.Save(masterPath); err != nil {
		return nil, err
	}
	return md, nil
}

// selectVars intersects the adaptor's advertised variables with the -vars
// flag, keeping the adaptor's order.
func selectVars(col source.Collection, requested []string) []string {
	all := append([]string(nil), col.Variables3D()...)
	for _, o := range []metadata.Orientation{metadata.VarXY, metadata.VarXZ, metadata.VarYZ} {
		all = append(all, col.Variables2D(o)...)
	}
	if len(requested) == 0 {
		return all
	}
	want := make(map[string]bool, len(requested))
	for _, v := range requested {
		want[v] = true
	}
	var out []string
	for _, v := range all {
		if want[v] {
			out = append(out, v)
		}
	}
	return out
}

func orientationOf(col source.Collection, name string) metadata.Orientation {
	for _, v := range col.Variables3D() {
		if v == name {
			return metadata.Var3D
		}
	}
	for _, o := range []metadata.Orientation{metadata.VarXY, metadata.VarXZ, metadata.VarYZ} {
		for _, v := range col.Variables2D(o) {
			if v == name {
				return o
			}
		}
	}
	return metadata.Var3D
}

// Convert streams every selected variable-timestep from the adaptor
// through the region writer, then re-saves the master with the collected
// statistics.
func Convert(col source.Collection, md *metadata.Metadata, opts ConvertOptions, masterPath string) error {
	for ts := opts.StartTS; ts < md.NumTimesteps(); ts++ {
		for _, name := range md.VariableNames() {
			if err := convertOne(col, md, opts, ts, name); err != nil {
				return vdcerr.Wrap(err, "vdccreate: variable %s timestep %d", name, ts)
			}
		}
	}
	return md.Save(masterPath)
}

func convertOne(col source.Collection, md *metadata.Metadata, opts ConvertOptions, ts int, name string) error {
	cfg, err := region.FromMetadata(md, name, ts, datamgr.DefaultVDCMissing, opts.NThreads)
	if err != nil {
		return err
	}
	w, err := region.NewWriter(cfg)
	if err != nil {
		return err
	}
	next, err := col.OpenVariableRead(ts, name)
	if err != nil {
		w.Close()
		return err
	}
	for {
		slice, err := next()
		if err != nil {
			if vdcerr.Is(err, vdcerr.NotAvailable) {
				break
			}
			w.Close()
			col.CloseVariable()
			return err
		}
		if err := w.WriteSlice(slice.Elements); err != nil {
			w.Close()
			col.CloseVariable()
			return err
		}
	}
	if err := col.CloseVariable(); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	min, max := w.Stats()
	if err := md.SetStats(name, ts, min, max); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"var": name, "timestep": ts, "min": min, "max": max,
	}).Info("converted variable")
	return nil
}
