//go:build netlib

package utils

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Building with `-tags netlib` routes gonum's float64 BLAS through the
// system implementation (OpenBLAS, Accelerate, ...).
func init() {
	blas64.Use(netlib.Implementation{})
}
