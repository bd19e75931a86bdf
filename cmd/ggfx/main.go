// Command ggfx applies a hue rotation, saturation change, both at once
// (grade) or a Gaussian blur to an image file using Vulkan compute, or the
// CPU reference with -cpu. "-" as -in or -out reads stdin or writes PNG to
// stdout.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/ggfx"
	"github.com/gogpu/ggfx/internal/filter"
	"github.com/gogpu/ggfx/internal/image"
)

// shaderDirEnv selects a directory of precompiled kernels when -shaders
// is not given.
const shaderDirEnv = "GGFX_SHADER_DIR"

// stdio names standard input or output in -in and -out.
const stdio = "-"

func main() {
	var (
		in         = flag.String("in", "", "input image (png, jpeg, bmp, tiff, webp), - for stdin")
		out        = flag.String("out", "out.png", "output image (png, jpeg, bmp, tiff), - for PNG on stdout")
		effect     = flag.String("effect", "hue", "effect: hue, blur, saturate or grade (hue then saturate)")
		angle      = flag.Float64("angle", 1.0, "hue rotation in radians")
		radius     = flag.Float64("radius", 5, "blur radius in [1, 25]")
		saturation = flag.Float64("saturation", 0, "saturation level, 1 keeps the input")
		outputs    = flag.Int("outputs", 1, "number of output slots to configure")
		index      = flag.Int("index", 0, "output slot to write and save")
		debug      = flag.Bool("debug", false, "enable the Vulkan validation layer")
		shaders    = flag.String("shaders", "", "directory of precompiled .spv kernels")
		scale      = flag.Float64("scale", 1, "resize the input by this factor first")
		cpu        = flag.Bool("cpu", false, "run the CPU reference instead of the GPU")
		verbose    = flag.Bool("v", false, "debug logging to stderr")
	)
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch *effect {
	case "hue", "blur", "saturate", "grade":
	default:
		log.Fatalf("Unknown effect %q", *effect)
	}
	if *verbose {
		ggfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	src, err := loadInput(*in, os.Stdin)
	if err != nil {
		log.Fatalf("Failed to load: %v", err)
	}
	if *scale != 1 {
		if src, err = src.Scale(*scale); err != nil {
			log.Fatalf("Failed to scale: %v", err)
		}
	}

	start := time.Now()
	var result *image.ImageBuf
	if *cpu {
		result, err = runCPU(src, *effect, float32(*angle), float32(*radius), float32(*saturation))
	} else {
		dir := *shaders
		if dir == "" {
			dir = os.Getenv(shaderDirEnv)
		}
		result, err = runGPU(src, gpuJob{
			effect:     *effect,
			angle:      float32(*angle),
			radius:     float32(*radius),
			saturation: float32(*saturation),
			outputs:    *outputs,
			index:      *index,
			debug:      *debug,
			shaderDir:  dir,
		})
	}
	if err != nil {
		log.Fatalf("Failed to apply %s: %v", *effect, err)
	}

	if err := saveOutput(result, *out, os.Stdout); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("%s saved to %s (%dx%d) in %v\n", *effect, *out, result.Width(), result.Height(), time.Since(start))
}

type gpuJob struct {
	effect     string
	angle      float32
	radius     float32
	saturation float32
	outputs    int
	index      int
	debug      bool
	shaderDir  string
}

func runGPU(src *image.ImageBuf, job gpuJob) (*image.ImageBuf, error) {
	opts := []ggfx.Option{ggfx.WithDebug(job.debug), ggfx.WithApplicationName("ggfx-cli")}
	if job.shaderDir != "" {
		opts = append(opts, ggfx.WithShaderSource(ggfx.NewDirSource(job.shaderDir)))
	}
	p, err := ggfx.New(opts...)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	info := p.Info()
	log.Printf("Device: %s (%v), Vulkan %s, workgroup %d\n", info.Name, info.Type, info.APIVersion, info.WorkgroupSize)

	if err := p.Configure(src, job.outputs); err != nil {
		return nil, err
	}
	switch job.effect {
	case "hue":
		err = p.RotateHue(job.angle, job.index)
	case "blur":
		err = p.Blur(job.radius, job.index)
	case "saturate":
		err = p.Saturate(job.saturation, job.index)
	case "grade":
		err = p.ApplyColorMatrix(gradeMatrix(job.angle, job.saturation), job.index)
	default:
		err = fmt.Errorf("unknown effect %q", job.effect)
	}
	if err != nil {
		return nil, err
	}
	return p.ReadOutput(job.index)
}

func runCPU(src *image.ImageBuf, effect string, angle, radius, saturation float32) (*image.ImageBuf, error) {
	switch effect {
	case "hue":
		return filter.ReferenceColorMatrix(src, filter.HueRotation(angle))
	case "blur":
		return filter.ReferenceBlur(src, radius)
	case "saturate":
		return filter.ReferenceColorMatrix(src, filter.Saturation(saturation))
	case "grade":
		return filter.ReferenceColorMatrix(src, gradeMatrix(angle, saturation))
	default:
		return nil, fmt.Errorf("unknown effect %q", effect)
	}
}

// gradeMatrix rotates the hue by angle and then scales saturation, as one
// color matrix pass.
func gradeMatrix(angle, saturation float32) filter.ColorMatrix {
	return filter.Saturation(saturation).Multiply(filter.HueRotation(angle))
}

// loadInput decodes path, or all of stdin when path is "-".
func loadInput(path string, stdin io.Reader) (*image.ImageBuf, error) {
	if path != stdio {
		return image.LoadImage(path)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return image.LoadImageFromBytes(data)
}

// saveOutput encodes img into path, or as PNG to stdout when path is "-".
func saveOutput(img *image.ImageBuf, path string, stdout io.Writer) error {
	if path != stdio {
		return img.SaveImage(path)
	}
	data, err := img.EncodeToBytes()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}
