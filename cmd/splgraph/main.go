// Command splgraph estimates how launch noise attenuates with distance from
// the pad.
//
// Usage:
//
//	splgraph analyze DIR --pad NAME
//	splgraph analyze DIR --lat 28.56 --lon -80.58 --threshold 110
//	splgraph pads
//	splgraph distance LAT1 LON1 LAT2 LON2
//
// analyze loads every recording in DIR, takes the maximum A-weighted level of
// each microphone, fits -a*ln(b*x + c) + d to the maxima over distance and
// prints the range at which the threshold level is reached.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
