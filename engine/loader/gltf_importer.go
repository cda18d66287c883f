package loader

import (
	"fmt"
	"log/slog"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
	"github.com/imalexlee/vk-gltf/engine/profiler"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	device  gpu.Device
	encoder ktx2.Encoder
	logger  *slog.Logger
}

// gltfImporter defines the interface for orchestrating a full glTF/GLB import.
// It combines the parser, the texture stage and all extractors to produce a GPU-ready Asset.
type gltfImporter interface {
	// Import loads a glTF/GLB file and builds every GPU resource it describes.
	// Stages run in a fixed order: images, meshes, samplers, materials, textures, nodes, scenes, lights.
	//
	// Parameters:
	//   - opts: the load options
	//
	// Returns:
	//   - *model.Asset: the fully populated asset
	//   - error: error if import fails; every GPU object created before the failure is released
	Import(opts LoadOptions) (*model.Asset, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
//
// Parameters:
//   - device: the device resources are created on
//   - encoder: the shared texture encoder
//   - logger: the destination of stage logs
//
// Returns:
//   - gltfImporter: the importer
func newGLTFImporter(device gpu.Device, encoder ktx2.Encoder, logger *slog.Logger) gltfImporter {
	return &gltfImporterImpl{device: device, encoder: encoder, logger: logger}
}

func (imp *gltfImporterImpl) Import(opts LoadOptions) (*model.Asset, error) {
	prof := profiler.NewProfiler()

	prof.Begin(model.StageParse)
	parser := newGLTFParser()
	if err := parser.Parse(opts.Path); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opts.Path, err)
	}
	defer parser.Release()

	doc := parser.Document()
	asset := model.NewAsset(
		model.WithName(parser.Stem()),
		model.WithSourcePath(opts.Path),
		model.WithCapacity(len(doc.Images), len(doc.Meshes), len(doc.Nodes)),
	)
	logger := imp.logger.With("asset", asset.Name)

	staging := newStagingBuffer(imp.device, prof)
	defer staging.Release()

	if err := imp.importStages(parser, asset, staging, prof, logger, opts); err != nil {
		asset.Destroy()
		return nil, fmt.Errorf("failed to import %s: %w", opts.Path, err)
	}

	asset.Metrics = prof.Finish()
	profiler.Log(logger, asset.Name, asset.Metrics)
	return asset, nil
}

// importStages runs every stage after parsing, appending results to asset as they are produced.
//
// Parameters:
//   - parser: the parser holding the validated document
//   - asset: the asset under construction
//   - staging: the staging buffer of the load
//   - prof: the profiler of the load
//   - logger: the asset logger
//   - opts: the load options
//
// Returns:
//   - error: the first stage error
func (imp *gltfImporterImpl) importStages(parser gltfParser, asset *model.Asset, staging stagingBuffer,
	prof *profiler.Profiler, logger *slog.Logger, opts LoadOptions) error {
	doc := parser.Document()
	transfer := newTransferExecutor(imp.device, prof)

	prof.Begin(model.StageImages)
	cache := newTextureCache(opts.CacheDir, logger)
	textures := newGLTFTextureStage(imp.device, staging, transfer, imp.encoder, cache, prof, logger,
		parser.Stem(), opts.CreateMipmaps)
	for i := range doc.Images {
		source, err := parser.ImageData(i)
		if err != nil {
			return fmt.Errorf("%w: image %d: %w", ErrDecodeImage, i, err)
		}
		selection := gltfResolveFormat(doc, gltfAllMaterialExtensions(parser), i, sourceChannels)
		img, err := textures.Process(i, source, selection)
		if err != nil {
			return err
		}
		asset.Images = append(asset.Images, img)
	}

	prof.Begin(model.StageMeshes)
	if err := newGLTFMeshExtractor(parser, imp.device, staging, transfer, prof, logger).ExtractAllMeshes(asset); err != nil {
		return err
	}

	materials := newGLTFMaterialExtractor(parser, imp.device, logger)
	prof.Begin(model.StageSamplers)
	if err := materials.ExtractAllSamplers(asset); err != nil {
		return err
	}
	prof.Begin(model.StageMaterials)
	materials.ExtractAllMaterials(asset)
	prof.Begin(model.StageTextures)
	materials.ExtractAllTextures(asset)

	scenes := newGLTFSceneBuilder(parser, logger)
	prof.Begin(model.StageNodes)
	scenes.BuildNodes(asset)
	prof.Begin(model.StageScenes)
	scenes.BuildScenes(asset)
	prof.Begin(model.StageLights)
	scenes.BuildLights(asset)

	logger.Debug("import stages complete",
		"images", len(asset.Images),
		"meshes", len(asset.Meshes),
		"primitives", asset.PrimitiveCount(),
		"materials", len(asset.Materials),
		"nodes", len(asset.Nodes),
	)
	return nil
}

// gltfAllMaterialExtensions collects the decoded extensions of every material, in document order.
func gltfAllMaterialExtensions(parser gltfParser) []gltfMaterialExtensions {
	mats := parser.Document().Materials
	out := make([]gltfMaterialExtensions, len(mats))
	for i := range mats {
		out[i] = parser.MaterialExtensions(i)
	}
	return out
}
