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

// Package vdcutil wires the thin converter CLIs around the core: cobra
// commands, viper-backed option binding and the adaptor-driven conversion
// loop. It contains no codec logic.
package vdcutil

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Cfg holds one converter invocation's configuration: every flag is bound
// through viper so options may also come from a config file or be set
// programmatically in tests.
type Cfg struct {
	*viper.Viper

	Root *cobra.Command
}

// NewCfg builds the vdccreate command tree; adaptors attach their
// subcommands through RegisterAdaptor.
func NewCfg() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "vdccreate [flags] master.vdf",
		Short: "vdccreate converts simulation output into a volume data collection.",
		Long: `vdccreate ingests an external simulation output through a
data-collection adaptor and writes a wavelet-compressed volume data
collection: one master.vdf file plus a directory of per-variable brick
files. Diagnostics go to standard error; the exit code is 0 on success
and 1 on any failure.`,
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("no data-collection adaptor selected; use a subcommand")
		},
	}

	flags := cfg.Root.PersistentFlags()
	flags.StringSlice("vars", nil, "variables to convert (default: all the adaptor advertises)")
	flags.Int("numts", -1, "number of timesteps to convert (default: all)")
	flags.Int("startts", 0, "first timestep to convert")
	flags.Int("level", -1, "finest refinement level to store (read but not applied: every level is stored)")
	flags.Int("lod", -1, "finest level of detail to store (read but not applied: every LOD is stored)")
	flags.Int("nthreads", 1, "transform worker threads per brick")
	flags.Bool("quiet", false, "suppress progress output")
	for _, name := range []string{"vars", "numts", "startts", "level", "lod", "nthreads", "quiet"} {
		cfg.BindPFlag(name, flags.Lookup(name))
	}
	return cfg
}

// Execute runs the command tree, printing diagnostics to standard error
// and exiting nonzero on failure.
func (cfg *Cfg) Execute() {
	logrus.SetOutput(os.Stderr)
	if err := cfg.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
