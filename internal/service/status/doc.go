// Package status reports whether the outputs of the last successful run are
// still current, without touching the network or the output directory.
package status
