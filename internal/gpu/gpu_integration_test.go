package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"golang.org/x/sys/unix"
)

// newTestContext returns a device context or skips when no Vulkan compute
// device is available.
func newTestContext(t *testing.T) *DeviceContext {
	t.Helper()
	ctx, err := NewDeviceContext(Options{ApplicationName: "ggfx-test"})
	if err != nil {
		t.Skipf("vulkan compute device unavailable: %v", err)
	}
	t.Cleanup(ctx.Destroy)
	return ctx
}

// readback copies img into host memory, leaving it in LayoutTransferSrc.
func readback(t *testing.T, ctx *DeviceContext, img *Image) []byte {
	t.Helper()
	size := uint64(img.Width()) * uint64(img.Height()) * 4
	buf, err := NewBuffer(ctx, size, UsageReadback, MemoryHostVisible)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	defer buf.Destroy()

	cmd, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		t.Fatalf("BeginSingleTimeCommands: %v", err)
	}
	img.TransitionLayout(cmd, LayoutTransferSrc, true)
	cmd.CopyImageToBuffer(img, buf)
	if err := ctx.EndAndSubmitSingleTimeCommands(cmd); err != nil {
		t.Fatalf("submit readback: %v", err)
	}
	out := make([]byte, size)
	if err := buf.CopyTo(out); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	return out
}

func identityMatrix() []byte {
	data := make([]byte, 48)
	for col := 0; col < 3; col++ {
		binary.LittleEndian.PutUint32(data[col*16+col*4:], math.Float32bits(1))
	}
	return data
}

func TestDeviceContextInfo(t *testing.T) {
	ctx := newTestContext(t)
	info := ctx.Info()
	if info.Name == "" {
		t.Error("device name is empty")
	}
	if ctx.WorkgroupSize() == 0 || ctx.WorkgroupSize()%4 != 0 {
		t.Errorf("WorkgroupSize = %d", ctx.WorkgroupSize())
	}
	if info.WorkgroupSize != ctx.WorkgroupSize() {
		t.Errorf("Info().WorkgroupSize = %d, want %d", info.WorkgroupSize, ctx.WorkgroupSize())
	}
	t.Logf("device %q (%v), api %s, tile %d", info.Name, info.Type, info.APIVersion, info.WorkgroupSize)
}

func TestUploadReadbackRoundTrip(t *testing.T) {
	ctx := newTestContext(t)

	src := solidPixels(5, 3, 10, 20, 30, 40)
	// Pad each row to exercise the stride path.
	padded := &testPixels{width: 5, height: 3, stride: 32, format: PixelFormat, pix: make([]byte, 32*3)}
	for y := 0; y < 3; y++ {
		copy(padded.pix[y*32:], src.pix[y*20:(y+1)*20])
	}

	img, err := NewImageFromPixels(ctx, padded)
	if err != nil {
		t.Fatalf("NewImageFromPixels: %v", err)
	}
	defer img.Destroy()
	if img.Layout() != LayoutShaderReadOnly {
		t.Errorf("Layout = %v, want ShaderReadOnly", img.Layout())
	}

	copyDst, err := NewImage(ctx, 5, 3, UsageTransferSrc|UsageTransferDst)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer copyDst.Destroy()

	// The sampled input has no TransferSrc usage; route through a compute copy.
	// Every byte is compared, so a kernel dispatched with a wrong local size
	// leaves unwritten pixels behind.
	pipeline, err := NewComputePipeline(ctx, NewWGSLSource(), ShaderColorMatrix, 48, false)
	if err != nil {
		t.Fatalf("NewComputePipeline: %v", err)
	}
	defer pipeline.Destroy()

	out, err := NewImage(ctx, 5, 3, UsageStorage|UsageTransferSrc)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer out.Destroy()

	cmd, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		t.Fatal(err)
	}
	out.TransitionLayout(cmd, LayoutGeneral, false)
	if err := pipeline.RecordComputeCommands(cmd, identityMatrix(), img, out, nil); err != nil {
		t.Fatalf("RecordComputeCommands: %v", err)
	}
	out.TransitionLayout(cmd, LayoutTransferSrc, true)
	copyDst.TransitionLayout(cmd, LayoutTransferDst, false)
	cmd.CopyImage(out, copyDst)
	if err := ctx.EndAndSubmitSingleTimeCommands(cmd); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := readback(t, ctx, copyDst)
	for i := range got {
		if got[i] != src.pix[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], src.pix[i])
		}
	}
}

func TestLoaderEntryPoints(t *testing.T) {
	newTestContext(t)

	var version uint32
	if err := check("vkEnumerateInstanceVersion", enumerateInstanceVersion(&version)); err != nil {
		t.Fatalf("enumerateInstanceVersion: %v", err)
	}
	if _, err := selectAPIVersion(version); err != nil {
		t.Errorf("instance version %s rejected: %v", formatVersion(version), err)
	}
}

func TestSharedMemoryExportFD(t *testing.T) {
	ctx := newTestContext(t)
	mem, err := NewSharedMemory(ctx, 8, 8)
	if err != nil {
		t.Skipf("external memory unavailable: %v", err)
	}
	defer mem.Release()

	fd, err := mem.ExportFD()
	if err != nil {
		t.Fatalf("ExportFD: %v", err)
	}
	if fd < 0 {
		t.Fatalf("ExportFD = %d, want a descriptor", fd)
	}
	if err := unix.Close(fd); err != nil {
		t.Errorf("close exported fd: %v", err)
	}
}

func TestSharedMemoryAliasing(t *testing.T) {
	ctx := newTestContext(t)

	mem, err := NewSharedMemory(ctx, 4, 4)
	if err != nil {
		t.Skipf("external memory unavailable: %v", err)
	}
	defer mem.Release()

	a, err := NewImageFromExternal(ctx, mem)
	if err != nil {
		t.Fatalf("import a: %v", err)
	}
	b, err := NewImageFromExternal(ctx, mem)
	if err != nil {
		a.Destroy()
		t.Fatalf("import b: %v", err)
	}
	if mem.Refs() != 3 {
		t.Errorf("Refs = %d, want 3", mem.Refs())
	}
	if a.Layout() != LayoutTransferDst || b.Layout() != LayoutTransferDst {
		t.Errorf("imported layouts = %v, %v, want TransferDst", a.Layout(), b.Layout())
	}

	staging, err := NewBuffer(ctx, 64, UsageStaging, MemoryHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	defer staging.Destroy()
	want := solidPixels(4, 4, 200, 100, 50, 255).pix
	if err := staging.CopyFrom(want); err != nil {
		t.Fatal(err)
	}
	cmd, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		t.Fatal(err)
	}
	cmd.CopyBufferToImage(staging, a, 4)
	if err := ctx.EndAndSubmitSingleTimeCommands(cmd); err != nil {
		t.Fatalf("upload: %v", err)
	}

	got := readback(t, ctx, b)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d through alias = %d, want %d", i, got[i], want[i])
		}
	}

	a.Destroy()
	b.Destroy()
	if mem.Refs() != 1 {
		t.Errorf("Refs = %d after destroying importers, want 1", mem.Refs())
	}
}
