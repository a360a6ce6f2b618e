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

package wavelet

import "github.com/spatialmodel/vdc/vdcerr"

// KernelForName maps a wavelet family name, as recorded in a collection's
// master file, to a configured kernel. "haar" and "bior1.1" select the
// Haar mode; "bior3.N" selects lifting with 3 predict and N update
// coefficients.
func KernelForName(name string) (*Kernel1D, error) {
	switch name {
	case "haar", "bior1.1":
		return NewKernel1D(1, 1)
	case "bior3.1":
		return NewKernel1D(3, 1)
	case "bior3.3":
		return NewKernel1D(3, 3)
	case "bior3.5":
		return NewKernel1D(3, 5)
	case "bior3.7":
		return NewKernel1D(3, 7)
	case "bior3.9":
		return NewKernel1D(3, 9)
	}
	return nil, vdcerr.Wrap(vdcerr.InvalidParam, "wavelet: unknown wavelet %q", name)
}
