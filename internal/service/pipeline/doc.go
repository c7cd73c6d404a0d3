// Package pipeline runs the provisioning stages in order: fetch, unpack,
// build, generate bindings and emit link directives.
//
// Each stage gates the next. The output directory is guarded by a run marker
// for the duration of a run and a provenance stamp is written on success.
package pipeline
