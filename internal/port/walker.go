package port

// FileWalker lists character definition files under a root.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

// FileInfo describes one definition file. Format is "yaml" or "json".
type FileInfo struct {
	Path    string
	Format  string
	ModTime int64
	Size    int64
}
