package model

// AssetBuilderOption is a functional option for configuring an Asset via NewAsset.
type AssetBuilderOption func(*Asset)

// WithName is an option builder that sets the name of the Asset.
//
// Parameters:
//   - name: the asset identifier, usually the document stem
//
// Returns:
//   - AssetBuilderOption: a function that applies the name option to an asset
func WithName(name string) AssetBuilderOption {
	return func(a *Asset) {
		a.Name = name
	}
}

// WithSourcePath is an option builder that sets the document path of the Asset.
//
// Parameters:
//   - path: the path the document is loaded from
//
// Returns:
//   - AssetBuilderOption: a function that applies the source path option to an asset
func WithSourcePath(path string) AssetBuilderOption {
	return func(a *Asset) {
		a.SourcePath = path
	}
}

// WithCapacity is an option builder that preallocates the Asset arrays for a document of known size.
//
// Parameters:
//   - images: number of images
//   - meshes: number of meshes
//   - nodes: number of nodes
//
// Returns:
//   - AssetBuilderOption: a function that preallocates the asset arrays
func WithCapacity(images, meshes, nodes int) AssetBuilderOption {
	return func(a *Asset) {
		a.Images = make([]Image, 0, images)
		a.Meshes = make([]Mesh, 0, meshes)
		a.Nodes = make([]Node, 0, nodes)
	}
}
