// Package analysis computes chain diagnostics from stored samples.
//
//   - [Autocorrelation]: normalized autocorrelation via zero-padded FFT
//   - [IntegratedAutocorrelationTime]: tau with Sokal's automatic window
//   - [EffectiveSampleSize]: n/tau
//   - [RunningAcceptance]: acceptance rate over a trailing window
//   - [Summarize]: all of the above for the energy series of one chain
//
// # Mixing
//
// A chain with tau close to 1 produces nearly independent samples:
//
//	s := analysis.Summarize(samples)
//	fmt.Printf("%.0f effective samples of %d\n", s.EffectiveSamples, s.Samples)
package analysis
