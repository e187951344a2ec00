// Package units provides shared constants and conversions for photon
// beam quantities.
package units

import "math"

// HCKeVAngstrom is the Planck constant times the speed of light,
// expressed in keV·Å (CODATA 2018).
const HCKeVAngstrom = 12.398419843320026

// WavelengthAngstrom converts a photon energy in keV to a wavelength in
// ångström. Returns 0 for non-positive energies.
func WavelengthAngstrom(energyKeV float64) float64 {
	if energyKeV <= 0 {
		return 0
	}
	return HCKeVAngstrom / energyKeV
}

// EnergyKeV converts a wavelength in ångström to a photon energy in keV.
// Returns 0 for non-positive wavelengths.
func EnergyKeV(wavelengthAngstrom float64) float64 {
	if wavelengthAngstrom <= 0 {
		return 0
	}
	return HCKeVAngstrom / wavelengthAngstrom
}

// MomentumTransfer computes the elastic momentum transfer q in 1/Å for
// a pixel at radius radiusM from the beam center, a sample-detector
// distance distanceM (both in metres) and the given wavelength in
// ångström:
//
//	q = (4π/λ) · sin(θ/2),  tan θ = r/d
func MomentumTransfer(radiusM, distanceM, wavelengthAngstrom float64) float64 {
	if distanceM <= 0 || wavelengthAngstrom <= 0 {
		return 0
	}
	theta := math.Atan2(radiusM, distanceM)
	return 4 * math.Pi / wavelengthAngstrom * math.Sin(theta/2)
}
