// Package config defines the pipeline settings and provides helpers to load,
// validate and save them in YAML format.
//
// The pinned source, the bindings file name and the library name default to
// compiled-in constants; a settings file only needs the keys it overrides.
package config
