package rangecache

// Key identifies a byte range of a file. FileNum is a stable file
// identity obtained from a fileid.Registry lease; Offset is the byte
// offset of the range within the file.
//
// Key is comparable and is used directly as the entry table's map key.
// Two keys are equal iff both fields match, so at most one entry per
// (file, offset) can ever be resident.
type Key struct {
	FileNum uint64
	Offset  uint64
}
