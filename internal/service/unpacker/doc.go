// Package unpacker extracts a source archive into a directory tree.
//
// The first entry of the archive names a synthetic root folder, which is
// stripped from every destination path; a leading "./" is part of that root.
// Symbolic links and other special entries are skipped. Files are compared by content hash:
// a matching file is left alone, a differing one is deleted and rewritten,
// a missing one is created. Re-running against an unchanged archive
// therefore writes nothing.
package unpacker
