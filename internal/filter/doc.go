// Package filter holds the parameter math behind the GPU effects.
//
// It computes the Gaussian blur kernel and the 3x3 color matrices
// (hue rotation, saturation), and packs them into the byte layouts the
// kernels read: a 4-byte radius and a 48-byte matrix as push constants,
// and a 208-byte uniform block of 52 weights.
//
// ReferenceColorMatrix and ReferenceBlur apply the same math on the host.
// They back the CLI's -cpu path and serve as test oracles for the GPU
// output. Rows are processed in bands on the shared worker pool.
package filter
