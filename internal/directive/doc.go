// Package directive announces pipeline results to the enclosing build.
//
// Directives are printed one per line as "<prefix><kind>=<value>". The
// emitter also remembers what it printed so that the pipeline can persist
// the watch list, and can render the link settings as a cgo flags file.
package directive
