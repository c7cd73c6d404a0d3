// Package builder runs the external native build over an unpacked source
// tree and returns where the artifact landed.
//
// NativeBuilder is the capability boundary; CMake is the implementation used
// for opus.
package builder
