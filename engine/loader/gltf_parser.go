package loader

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/lightspunctual"
	"github.com/qmuntal/gltf/modeler"

	"github.com/imalexlee/vk-gltf/common"
)

// Extension names read by the loader.
const (
	extMaterialsClearcoat    = "KHR_materials_clearcoat"
	extMaterialsSpecGloss    = "KHR_materials_pbrSpecularGlossiness"
	extMaterialsTransmission = "KHR_materials_transmission"
	extMaterialsSheen        = "KHR_materials_sheen"
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	path     string
	baseDir  string
	document *gltf.Document
	indices  *gltfIndexMaps

	materialExts []gltfMaterialExtensions
	lights       lightspunctual.Lights
	nodeLights   []common.Optional[int]
}

// gltfParser defines the interface for loading, validating and querying a glTF/GLB document.
// It handles file I/O (through qmuntal/gltf), reference validation, extension decoding and image byte access.
// This is internal to the loader package.
type gltfParser interface {
	// Parse loads and validates a glTF/GLB file and its side-car buffers.
	// No GPU resource is touched; a document that fails here aborts the load before any allocation.
	//
	// Parameters:
	//   - path: path to the glTF or GLB file
	//
	// Returns:
	//   - error: an ErrInvalidDocument error if parsing or validation fails
	Parse(path string) error

	// Document returns the parsed document, nil before Parse or after Release.
	//
	// Returns:
	//   - *gltf.Document: the parsed document or nil
	Document() *gltf.Document

	// Stem returns the file name of the document without its extension.
	//
	// Returns:
	//   - string: the document stem
	Stem() string

	// IndexMaps returns the object to index maps built during Parse.
	//
	// Returns:
	//   - *gltfIndexMaps: the index maps
	IndexMaps() *gltfIndexMaps

	// MaterialExtensions returns the decoded PBR extensions of a material.
	//
	// Parameters:
	//   - materialIndex: the index of the material
	//
	// Returns:
	//   - gltfMaterialExtensions: the decoded extensions, zero when none are present
	MaterialExtensions(materialIndex int) gltfMaterialExtensions

	// Lights returns the document level KHR_lights_punctual array.
	//
	// Returns:
	//   - lightspunctual.Lights: the lights, nil when the extension is absent
	Lights() lightspunctual.Lights

	// NodeLight returns the light referenced by a node.
	//
	// Parameters:
	//   - nodeIndex: the index of the node
	//
	// Returns:
	//   - common.Optional[int]: the light index when the node carries one
	NodeLight(nodeIndex int) common.Optional[int]

	// ImageData returns the encoded bytes of an image from its buffer view, data URI or side-car file.
	//
	// Parameters:
	//   - imageIndex: the index of the image
	//
	// Returns:
	//   - []byte: the encoded image bytes
	//   - error: error if the bytes cannot be read
	ImageData(imageIndex int) ([]byte, error)

	// Release drops the document and its buffers.
	Release()
}

var _ gltfParser = &gltfParserImpl{}

// newGLTFParser creates a new glTF parser.
//
// Returns:
//   - gltfParser: a new parser instance
func newGLTFParser() gltfParser {
	return &gltfParserImpl{}
}

func (p *gltfParserImpl) Document() *gltf.Document {
	return p.document
}

func (p *gltfParserImpl) Stem() string {
	base := filepath.Base(p.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (p *gltfParserImpl) IndexMaps() *gltfIndexMaps {
	return p.indices
}

func (p *gltfParserImpl) MaterialExtensions(materialIndex int) gltfMaterialExtensions {
	if materialIndex < 0 || materialIndex >= len(p.materialExts) {
		return gltfMaterialExtensions{}
	}
	return p.materialExts[materialIndex]
}

func (p *gltfParserImpl) Lights() lightspunctual.Lights {
	return p.lights
}

func (p *gltfParserImpl) NodeLight(nodeIndex int) common.Optional[int] {
	if nodeIndex < 0 || nodeIndex >= len(p.nodeLights) {
		return common.None[int]()
	}
	return p.nodeLights[nodeIndex]
}

func (p *gltfParserImpl) Parse(path string) error {
	p.path = path
	p.baseDir = filepath.Dir(path)

	doc, err := gltf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	p.document = doc

	if err := p.decodeExtensions(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := gltfValidateReferences(doc, p.materialExts, len(p.lights), p.nodeLights); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	indices, err := newGLTFIndexMaps(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	p.indices = indices
	return nil
}

func (p *gltfParserImpl) Release() {
	p.document = nil
	p.indices = nil
	p.materialExts = nil
	p.lights = nil
	p.nodeLights = nil
}

// decodeExtensions decodes the material and light extensions the loader understands.
func (p *gltfParserImpl) decodeExtensions() error {
	doc := p.document

	p.materialExts = make([]gltfMaterialExtensions, len(doc.Materials))
	for i, mat := range doc.Materials {
		if mat == nil {
			continue
		}
		exts, err := gltfDecodeMaterialExtensions(mat.Extensions)
		if err != nil {
			return fmt.Errorf("material %d: %w", i, err)
		}
		p.materialExts[i] = exts
	}

	if ext, ok := doc.Extensions[lightspunctual.ExtensionName]; ok {
		lights, err := gltfDecodeLights(ext)
		if err != nil {
			return err
		}
		p.lights = lights
	}

	p.nodeLights = make([]common.Optional[int], len(doc.Nodes))
	for i, node := range doc.Nodes {
		if node == nil {
			continue
		}
		ext, ok := node.Extensions[lightspunctual.ExtensionName]
		if !ok {
			continue
		}
		idx, err := gltfDecodeLightIndex(ext)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		p.nodeLights[i] = common.Some(idx)
	}
	return nil
}

func (p *gltfParserImpl) ImageData(imageIndex int) ([]byte, error) {
	doc := p.document
	if doc == nil || imageIndex < 0 || imageIndex >= len(doc.Images) {
		return nil, fmt.Errorf("image %d out of range", imageIndex)
	}
	img := doc.Images[imageIndex]

	switch {
	case img.BufferView != nil:
		return modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
	case img.IsEmbeddedResource():
		return img.MarshalData()
	case img.URI != "":
		uri, err := url.PathUnescape(img.URI)
		if err != nil {
			uri = img.URI
		}
		data, err := os.ReadFile(filepath.Join(p.baseDir, filepath.FromSlash(uri)))
		if err != nil {
			return nil, fmt.Errorf("failed to load image file %q: %w", img.URI, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("image %d has neither a buffer view nor a URI", imageIndex)
	}
}

// --- Extension Decoding ---

// gltfExtensionTextureInfo is a texture reference inside a material extension.
type gltfExtensionTextureInfo struct {
	Index    int      `json:"index"`
	TexCoord int      `json:"texCoord"`
	Scale    *float64 `json:"scale,omitempty"`
}

// gltfMaterialExtensions holds the material extensions the loader understands.
// Texture references are nil when the extension or slot is absent.
type gltfMaterialExtensions struct {
	Clearcoat          *gltfClearcoat
	SpecularGlossiness *gltfSpecularGlossiness
	Transmission       *gltfTransmission
	Sheen              *gltfSheen
}

// gltfClearcoat is KHR_materials_clearcoat.
type gltfClearcoat struct {
	ClearcoatFactor           float64                   `json:"clearcoatFactor"`
	ClearcoatTexture          *gltfExtensionTextureInfo `json:"clearcoatTexture"`
	ClearcoatRoughnessFactor  float64                   `json:"clearcoatRoughnessFactor"`
	ClearcoatRoughnessTexture *gltfExtensionTextureInfo `json:"clearcoatRoughnessTexture"`
	ClearcoatNormalTexture    *gltfExtensionTextureInfo `json:"clearcoatNormalTexture"`
}

// gltfSpecularGlossiness is KHR_materials_pbrSpecularGlossiness, kept for slot classification only.
type gltfSpecularGlossiness struct {
	DiffuseTexture            *gltfExtensionTextureInfo `json:"diffuseTexture"`
	SpecularGlossinessTexture *gltfExtensionTextureInfo `json:"specularGlossinessTexture"`
}

// gltfTransmission is KHR_materials_transmission, kept for slot classification only.
type gltfTransmission struct {
	TransmissionTexture *gltfExtensionTextureInfo `json:"transmissionTexture"`
}

// gltfSheen is KHR_materials_sheen, kept for slot classification only.
type gltfSheen struct {
	SheenColorTexture     *gltfExtensionTextureInfo `json:"sheenColorTexture"`
	SheenRoughnessTexture *gltfExtensionTextureInfo `json:"sheenRoughnessTexture"`
}

// textureRefs lists the texture indices referenced by the extensions.
func (e gltfMaterialExtensions) textureRefs() []int {
	var infos []*gltfExtensionTextureInfo
	if c := e.Clearcoat; c != nil {
		infos = append(infos, c.ClearcoatTexture, c.ClearcoatRoughnessTexture, c.ClearcoatNormalTexture)
	}
	if sg := e.SpecularGlossiness; sg != nil {
		infos = append(infos, sg.DiffuseTexture, sg.SpecularGlossinessTexture)
	}
	if t := e.Transmission; t != nil {
		infos = append(infos, t.TransmissionTexture)
	}
	if sh := e.Sheen; sh != nil {
		infos = append(infos, sh.SheenColorTexture, sh.SheenRoughnessTexture)
	}

	var refs []int
	for _, info := range infos {
		if info != nil {
			refs = append(refs, info.Index)
		}
	}
	return refs
}

// gltfDecodeMaterialExtensions decodes the known material extensions. Unregistered extensions arrive as
// json.RawMessage; re-marshalling also covers values a registered decoder already typed.
func gltfDecodeMaterialExtensions(exts gltf.Extensions) (gltfMaterialExtensions, error) {
	var out gltfMaterialExtensions
	targets := map[string]any{
		extMaterialsClearcoat:    &out.Clearcoat,
		extMaterialsSpecGloss:    &out.SpecularGlossiness,
		extMaterialsTransmission: &out.Transmission,
		extMaterialsSheen:        &out.Sheen,
	}
	for name, dst := range targets {
		v, ok := exts[name]
		if !ok {
			continue
		}
		if err := gltfRemarshal(v, dst); err != nil {
			return out, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return out, nil
}

// gltfDecodeLights converts the document level light extension value into lightspunctual.Lights.
func gltfDecodeLights(v any) (lightspunctual.Lights, error) {
	switch ext := v.(type) {
	case lightspunctual.Lights:
		return ext, nil
	case json.RawMessage:
		decoded, err := lightspunctual.Unmarshal(ext)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", lightspunctual.ExtensionName, err)
		}
		return gltfDecodeLights(decoded)
	default:
		return nil, fmt.Errorf("decode %s: unexpected value %T", lightspunctual.ExtensionName, v)
	}
}

// gltfDecodeLightIndex converts a node level light extension value into a light index.
func gltfDecodeLightIndex(v any) (int, error) {
	switch ext := v.(type) {
	case lightspunctual.LightIndex:
		return int(ext), nil
	case json.RawMessage:
		decoded, err := lightspunctual.Unmarshal(ext)
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", lightspunctual.ExtensionName, err)
		}
		return gltfDecodeLightIndex(decoded)
	default:
		return 0, fmt.Errorf("decode %s: unexpected value %T", lightspunctual.ExtensionName, v)
	}
}

func gltfRemarshal(v, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// --- Validation ---

// gltfValidateReferences checks every index reference of the document against the array it points into.
func gltfValidateReferences(doc *gltf.Document, materialExts []gltfMaterialExtensions, lightCount int, nodeLights []common.Optional[int]) error {
	inRange := func(kind string, idx, n int) error {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%s index %d out of range [0, %d)", kind, idx, n)
		}
		return nil
	}
	optInRange := func(kind string, idx *int, n int) error {
		if idx == nil {
			return nil
		}
		return inRange(kind, *idx, n)
	}

	for i, acc := range doc.Accessors {
		if acc == nil {
			return fmt.Errorf("accessor %d is null", i)
		}
		if err := optInRange("buffer view", acc.BufferView, len(doc.BufferViews)); err != nil {
			return fmt.Errorf("accessor %d: %w", i, err)
		}
	}
	for i, bv := range doc.BufferViews {
		if bv == nil {
			return fmt.Errorf("buffer view %d is null", i)
		}
		if err := inRange("buffer", bv.Buffer, len(doc.Buffers)); err != nil {
			return fmt.Errorf("buffer view %d: %w", i, err)
		}
		if buf := doc.Buffers[bv.Buffer]; bv.ByteOffset+bv.ByteLength > len(buf.Data) {
			return fmt.Errorf("buffer view %d: bytes [%d, %d) exceed buffer of %d bytes",
				i, bv.ByteOffset, bv.ByteOffset+bv.ByteLength, len(buf.Data))
		}
	}
	for i, img := range doc.Images {
		if img == nil {
			return fmt.Errorf("image %d is null", i)
		}
		if err := optInRange("buffer view", img.BufferView, len(doc.BufferViews)); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	for i, tex := range doc.Textures {
		if tex == nil {
			return fmt.Errorf("texture %d is null", i)
		}
		if err := optInRange("image", tex.Source, len(doc.Images)); err != nil {
			return fmt.Errorf("texture %d: %w", i, err)
		}
		if err := optInRange("sampler", tex.Sampler, len(doc.Samplers)); err != nil {
			return fmt.Errorf("texture %d: %w", i, err)
		}
	}
	for i, mat := range doc.Materials {
		if mat == nil {
			return fmt.Errorf("material %d is null", i)
		}
		refs := append(gltfMaterialTextureRefs(mat), materialExts[i].textureRefs()...)
		for _, ref := range refs {
			if err := inRange("texture", ref, len(doc.Textures)); err != nil {
				return fmt.Errorf("material %d: %w", i, err)
			}
		}
	}
	for i, mesh := range doc.Meshes {
		if mesh == nil {
			return fmt.Errorf("mesh %d is null", i)
		}
		for j, prim := range mesh.Primitives {
			if prim == nil {
				return fmt.Errorf("mesh %d primitive %d is null", i, j)
			}
			if _, ok := prim.Attributes[gltf.POSITION]; !ok {
				return fmt.Errorf("mesh %d primitive %d has no POSITION attribute", i, j)
			}
			for name, acc := range prim.Attributes {
				if err := inRange("accessor", acc, len(doc.Accessors)); err != nil {
					return fmt.Errorf("mesh %d primitive %d attribute %s: %w", i, j, name, err)
				}
			}
			if err := optInRange("accessor", prim.Indices, len(doc.Accessors)); err != nil {
				return fmt.Errorf("mesh %d primitive %d indices: %w", i, j, err)
			}
			if err := optInRange("material", prim.Material, len(doc.Materials)); err != nil {
				return fmt.Errorf("mesh %d primitive %d: %w", i, j, err)
			}
		}
	}
	for i, node := range doc.Nodes {
		if node == nil {
			return fmt.Errorf("node %d is null", i)
		}
		if err := optInRange("mesh", node.Mesh, len(doc.Meshes)); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		for _, child := range node.Children {
			if err := inRange("child node", child, len(doc.Nodes)); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
		}
		if light, ok := nodeLights[i].Get(); ok {
			if err := inRange("light", light, lightCount); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
		}
	}
	for i, scene := range doc.Scenes {
		if scene == nil {
			return fmt.Errorf("scene %d is null", i)
		}
		for _, n := range scene.Nodes {
			if err := inRange("node", n, len(doc.Nodes)); err != nil {
				return fmt.Errorf("scene %d: %w", i, err)
			}
		}
	}
	return optInRange("default scene", doc.Scene, len(doc.Scenes))
}

// gltfMaterialTextureRefs lists the core texture indices referenced by a material.
func gltfMaterialTextureRefs(mat *gltf.Material) []int {
	var refs []int
	if pbr := mat.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorTexture != nil {
			refs = append(refs, pbr.BaseColorTexture.Index)
		}
		if pbr.MetallicRoughnessTexture != nil {
			refs = append(refs, pbr.MetallicRoughnessTexture.Index)
		}
	}
	if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
		refs = append(refs, *mat.NormalTexture.Index)
	}
	if mat.OcclusionTexture != nil && mat.OcclusionTexture.Index != nil {
		refs = append(refs, *mat.OcclusionTexture.Index)
	}
	if mat.EmissiveTexture != nil {
		refs = append(refs, mat.EmissiveTexture.Index)
	}
	return refs
}
