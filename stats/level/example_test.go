package level_test

import (
	"fmt"

	"github.com/cwbudde/launchnoise/stats/level"
)

func ExampleCalculate() {
	s := level.Calculate([]float64{80, 90}, []float64{-1, 0})
	fmt.Printf("max=%.1f at t=%.0f leq=%.1f\n", s.Max, s.MaxOffset, s.Leq)

	// Output:
	// max=90.0 at t=0 leq=87.4
}

func ExampleExceeded() {
	fmt.Printf("L50=%.1f\n", level.Exceeded([]float64{50, 60, 70, 80, 90}, 50))

	// Output:
	// L50=70.0
}
