// Package stamp implements persistence for the provenance stamp written after
// a successful pipeline run.
//
// The FileRepository stores and loads the stamp as YAML in the output
// directory and exposes a Repository interface that the pipeline and status
// services depend on.
package stamp
