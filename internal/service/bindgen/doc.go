// Package bindgen produces the Go interface source for the native library
// from its entry header.
//
// A Generator turns a header path into source text; GenerateBindings runs it
// and replaces the output file atomically. Output is regenerated on every run.
package bindgen
