package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PowerSpectrum returns |FFT(x - mean)| for the non-negative frequencies.
func PowerSpectrum(data []float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	spectrum := fft.FFTReal(centered(data))
	ps := make([]float64, len(spectrum)/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(spectrum[i])
	}
	return ps
}

// Autocorrelation returns the normalized autocorrelation function of data
// for lags 0..len(data)-1, computed with a zero-padded FFT. acf[0] is 1
// unless data is constant, in which case every lag is 0.
func Autocorrelation(data []float64) []float64 {
	n := len(data)
	if n == 0 {
		return nil
	}

	padded := make([]float64, nextPow2(2*n))
	copy(padded, centered(data))

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	raw := fft.IFFT(spectrum)

	acf := make([]float64, n)
	c0 := real(raw[0])
	if c0 == 0 {
		return acf
	}
	for lag := range acf {
		acf[lag] = real(raw[lag]) / c0
	}
	return acf
}

func centered(data []float64) []float64 {
	m := Mean(data)
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = v - m
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
