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

// Command vdccreate converts external simulation output into a
// wavelet-compressed volume data collection. Source-format adaptors
// register themselves as subcommands; the core engine carries no CLI of
// its own.
package main

import "github.com/spatialmodel/vdc/vdcutil"

func main() {
	cfg := vdcutil.NewCfg()
	cfg.Execute()
}
