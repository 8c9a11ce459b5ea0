package main

func usesFloats(f float64) float64 {
	g := f * 2.0
	if g > 1.0 {
		panic("boom")
	}
	return g
}
