package ir

// Resource is an embedded binary asset (image, font, stylesheet, ...) owned
// exclusively by its Document. Bytes is treated as immutable once loaded:
// transforms that need to modify a resource produce a new Resource and a
// new id rather than mutating Bytes in place, so Document.Clone can share
// the slice instead of copying it.
type Resource struct {
	ID        string
	MediaType string
	Bytes     []byte

	// OriginalFilename is the path or filename the resource was read from,
	// when known. Writers use it as a hint but are free to rename.
	OriginalFilename string
}

// ResourceMap maps resource id to Resource. The owning Document is the
// exclusive owner of every Resource's bytes.
type ResourceMap map[string]Resource

// TotalBytes returns the sum of every resource's byte length, the quantity
// the Security Gate bounds against max_decompressed_size_bytes.
func (m ResourceMap) TotalBytes() int64 {
	var total int64
	for _, r := range m {
		total += int64(len(r.Bytes))
	}
	return total
}
