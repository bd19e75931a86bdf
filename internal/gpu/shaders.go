package gpu

import (
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sync"

	"github.com/gogpu/naga"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ShaderID names one of the fixed kernels.
type ShaderID int

const (
	// ShaderColorMatrix multiplies rgb by a 3x3 matrix.
	ShaderColorMatrix ShaderID = iota
	// ShaderBlurHorizontal is the horizontal Gaussian pass.
	ShaderBlurHorizontal
	// ShaderBlurVertical is the vertical Gaussian pass.
	ShaderBlurVertical

	shaderCount
)

// ShaderIDs lists every kernel.
var ShaderIDs = [shaderCount]ShaderID{ShaderColorMatrix, ShaderBlurHorizontal, ShaderBlurVertical}

// String returns the asset name of the kernel.
func (id ShaderID) String() string {
	switch id {
	case ShaderColorMatrix:
		return "colormatrix"
	case ShaderBlurHorizontal:
		return "blur_h"
	case ShaderBlurVertical:
		return "blur_v"
	default:
		return fmt.Sprintf("ShaderID(%d)", int(id))
	}
}

// ShaderSource supplies SPIR-V words for a kernel dispatched in square
// tiles of edge tile. Sources that cannot bake the tile in must declare
// specialization constants 0 and 1 for the local size instead.
type ShaderSource interface {
	Load(id ShaderID, tile uint32) ([]uint32, error)
}

//go:embed shaders/*.wgsl
var wgslFS embed.FS

// WGSL returns the embedded WGSL source of a kernel.
func WGSL(id ShaderID) (string, error) {
	if id < 0 || id >= shaderCount {
		return "", fmt.Errorf("%w: %v", ErrUnknownShader, id)
	}
	src, err := wgslFS.ReadFile("shaders/" + id.String() + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("%w: %v: %w", ErrUnknownShader, id, err)
	}
	return string(src), nil
}

var workgroupSizeAttr = regexp.MustCompile(`@workgroup_size\([^)]*\)`)

// WithWorkgroupSize rewrites the @workgroup_size attribute of source to a
// tile×tile×1 literal. naga folds override declarations to their defaults,
// so the tile has to be in the text before compilation.
func WithWorkgroupSize(source string, tile uint32) (string, error) {
	if tile == 0 {
		return "", fmt.Errorf("%w: zero workgroup size", ErrShaderCompile)
	}
	if !workgroupSizeAttr.MatchString(source) {
		return "", fmt.Errorf("%w: no @workgroup_size attribute", ErrShaderCompile)
	}
	attr := fmt.Sprintf("@workgroup_size(%d, %d, 1)", tile, tile)
	return workgroupSizeAttr.ReplaceAllLiteralString(source, attr), nil
}

// CompileWGSL compiles WGSL source to SPIR-V words with naga.
func CompileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	return decodeSPIRV(spirv)
}

type wgslKey struct {
	id   ShaderID
	tile uint32
}

// WGSLSource compiles the embedded kernels on first use and caches the
// result per kernel and tile.
type WGSLSource struct {
	mu    sync.Mutex
	cache map[wgslKey][]uint32
}

// NewWGSLSource returns an empty compiling source.
func NewWGSLSource() *WGSLSource {
	return &WGSLSource{cache: make(map[wgslKey][]uint32)}
}

// Load implements ShaderSource.
func (s *WGSLSource) Load(id ShaderID, tile uint32) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := wgslKey{id, tile}
	if code, ok := s.cache[key]; ok {
		return code, nil
	}
	src, err := WGSL(id)
	if err != nil {
		return nil, err
	}
	if src, err = WithWorkgroupSize(src, tile); err != nil {
		return nil, fmt.Errorf("%v: %w", id, err)
	}
	code, err := CompileWGSL(src)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", id, err)
	}
	s.cache[key] = code
	slogger().Debug("gpu: shader compiled", "shader", id.String(), "tile", tile, "words", len(code))
	return code, nil
}

// DirSource loads precompiled "<name>.spv" files, for example
// colormatrix.spv, from a file system. The files take the tile from
// specialization constants 0 and 1 (GLSL local_size_x_id/local_size_y_id).
type DirSource struct {
	FS fs.FS
}

// NewDirSource returns a DirSource reading from dir on disk.
func NewDirSource(dir string) DirSource {
	return DirSource{FS: os.DirFS(dir)}
}

// Load implements ShaderSource. The tile is applied at pipeline creation.
func (d DirSource) Load(id ShaderID, _ uint32) ([]uint32, error) {
	if id < 0 || id >= shaderCount {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShader, id)
	}
	data, err := fs.ReadFile(d.FS, id.String()+".spv")
	if err != nil {
		return nil, fmt.Errorf("gpu: load %v: %w", id, err)
	}
	return decodeSPIRV(data)
}

// decodeSPIRV converts little-endian bytes to words and checks the header.
func decodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}
