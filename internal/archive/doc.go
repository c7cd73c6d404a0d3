// Package archive reads compressed source archives as a sequence of named
// entries.
//
// Zip archives are read through klauspost/compress/zip. Tarballs may be
// uncompressed or wrapped in gzip, zstd, xz, lz4 or bzip2; the format is
// picked from the file name.
package archive
