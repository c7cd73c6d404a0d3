// Package hasher computes streaming content digests.
//
// Sum and SumFile read their input in BufferSize chunks, so the result never
// depends on how the source splits its reads. Accumulator folds a stream that
// is being written elsewhere (a download) into a running digest.
package hasher
