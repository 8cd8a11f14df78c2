package audio

import "math"

// HammingWindow returns 0.54 - 0.46 cos(2 pi i / (n-1)) for i in [0, n).
func HammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// spectrum computes power spectra by direct DFT. Twiddle factors are
// tabulated once per frame size; each spectrum is still O(N^2).
type spectrum struct {
	n   int
	cos []float64
	sin []float64
}

func newSpectrum(n int) *spectrum {
	s := &spectrum{n: n, cos: make([]float64, n), sin: make([]float64, n)}
	for m := 0; m < n; m++ {
		angle := 2 * math.Pi * float64(m) / float64(n)
		s.cos[m] = math.Cos(angle)
		s.sin[m] = math.Sin(angle)
	}
	return s
}

// power returns |X_k|^2 for k in [0, N/2).
func (s *spectrum) power(frame []float64) []float64 {
	bins := s.n / 2
	out := make([]float64, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		idx := 0
		for i := 0; i < s.n; i++ {
			re += frame[i] * s.cos[idx]
			im -= frame[i] * s.sin[idx]
			idx += k
			if idx >= s.n {
				idx -= s.n
			}
		}
		out[k] = re*re + im*im
	}
	return out
}

// signalPower returns |X_k|^2 for k in [0, N/2) over the whole signal
// zero-padded to N, the next power of two, along with N.
func signalPower(samples []float64) ([]float64, int) {
	n := 2
	for n < len(samples) {
		n <<= 1
	}
	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, samples)
	fft(re, im)

	out := make([]float64, n/2)
	for k := range out {
		out[k] = re[k]*re[k] + im[k]*im[k]
	}
	return out, n
}

// fft is an in-place iterative radix-2 transform using the same sign
// convention as spectrum.power. len(re) must be a power of two.
func fft(re, im []float64) {
	n := len(re)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := -2 * math.Pi / float64(size)
		for k := 0; k < half; k++ {
			wr, wi := math.Cos(step*float64(k)), math.Sin(step*float64(k))
			for start := 0; start < n; start += size {
				a, b := start+k, start+k+half
				tr := wr*re[b] - wi*im[b]
				ti := wr*im[b] + wi*re[b]
				re[b], im[b] = re[a]-tr, im[a]-ti
				re[a], im[a] = re[a]+tr, im[a]+ti
			}
		}
	}
}

// HzToMel converts frequency to the mel scale.
func HzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }

// MelToHz converts mel back to frequency.
func MelToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// MelFilterBank builds triangular filters spaced evenly on the mel scale
// between 0 Hz and Nyquist, expressed over bins power-spectrum bins.
func MelFilterBank(bands, frameSize, bins, sampleRate int) [][]float64 {
	high := HzToMel(float64(sampleRate) / 2)
	points := make([]int, bands+2)
	for i := range points {
		hz := MelToHz(high * float64(i) / float64(bands+1))
		b := int(math.Floor(float64(frameSize+1) * hz / float64(sampleRate)))
		if b > bins-1 {
			b = bins - 1
		}
		points[i] = b
	}

	bank := make([][]float64, bands)
	for m := 1; m <= bands; m++ {
		f := make([]float64, bins)
		left, center, right := points[m-1], points[m], points[m+1]
		for k := left; k < center; k++ {
			f[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right; k++ {
			if right == center {
				f[k] = 1
				continue
			}
			f[k] = float64(right-k) / float64(right-center)
		}
		bank[m-1] = f
	}
	return bank
}

// DCT2 computes the first n type-II DCT coefficients of x with sqrt(2/N)
// normalization.
func DCT2(x []float64, n int) []float64 {
	size := len(x)
	out := make([]float64, n)
	if size == 0 {
		return out
	}
	scale := math.Sqrt(2 / float64(size))
	for k := 0; k < n; k++ {
		sum := 0.0
		for i, v := range x {
			sum += v * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/float64(size))
		}
		out[k] = scale * sum
	}
	return out
}

// CosineSimilarity returns a.b / (|a| |b|), or 0 if either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
