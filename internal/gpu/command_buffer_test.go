package gpu

import (
	"errors"
	"testing"
)

func TestCommandStateString(t *testing.T) {
	tests := []struct {
		state CommandState
		want  string
	}{
		{CommandStateInitial, "Initial"},
		{CommandStateRecording, "Recording"},
		{CommandStateExecutable, "Executable"},
		{CommandStateFreed, "Freed"},
		{CommandState(7), "CommandState(7)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandBufferStateErrors(t *testing.T) {
	freed := &CommandBuffer{ctx: &DeviceContext{}, state: CommandStateFreed}
	if err := freed.Begin(true); !errors.Is(err, ErrCommandState) {
		t.Errorf("Begin on freed buffer: err = %v, want ErrCommandState", err)
	}
	if err := freed.Reset(); !errors.Is(err, ErrCommandState) {
		t.Errorf("Reset on freed buffer: err = %v, want ErrCommandState", err)
	}
	freed.Free()
	if freed.State() != CommandStateFreed {
		t.Errorf("State = %v after second Free", freed.State())
	}

	initial := &CommandBuffer{ctx: &DeviceContext{}}
	if err := initial.End(); !errors.Is(err, ErrCommandState) {
		t.Errorf("End without Begin: err = %v, want ErrCommandState", err)
	}

	recording := &CommandBuffer{ctx: &DeviceContext{}, state: CommandStateRecording}
	if err := recording.Begin(false); !errors.Is(err, ErrCommandState) {
		t.Errorf("Begin while recording: err = %v, want ErrCommandState", err)
	}
}

func TestCommandBufferStickyError(t *testing.T) {
	cb := &CommandBuffer{ctx: &DeviceContext{}}

	// Recording outside Begin/End is remembered instead of reaching the driver.
	cb.PipelineBarrier(Barrier{OldLayout: LayoutUndefined, NewLayout: LayoutGeneral})
	if !errors.Is(cb.err, ErrCommandState) {
		t.Fatalf("err = %v, want ErrCommandState", cb.err)
	}
	first := cb.err

	img := &Image{width: 4, height: 4, layout: LayoutGeneral}
	cb.CopyImage(img, img)
	if cb.err != first {
		t.Errorf("later failure replaced the first: %v", cb.err)
	}
}

func TestCommandBufferCopyValidation(t *testing.T) {
	src := &Image{width: 8, height: 8, layout: LayoutTransferSrc}
	dst := &Image{width: 8, height: 4, layout: LayoutTransferDst}

	cb := &CommandBuffer{state: CommandStateRecording}
	cb.CopyImage(src, dst)
	if !errors.Is(cb.err, ErrInvalidSize) {
		t.Errorf("size mismatch: err = %v, want ErrInvalidSize", cb.err)
	}

	cb = &CommandBuffer{state: CommandStateRecording}
	dst.height = 8
	dst.layout = LayoutGeneral
	cb.CopyImage(src, dst)
	if !errors.Is(cb.err, ErrCommandState) {
		t.Errorf("wrong destination layout: err = %v, want ErrCommandState", cb.err)
	}

	cb = &CommandBuffer{state: CommandStateRecording}
	cb.CopyBufferToImage(&Buffer{}, dst, 8)
	if !errors.Is(cb.err, ErrCommandState) {
		t.Errorf("upload into General: err = %v, want ErrCommandState", cb.err)
	}

	cb = &CommandBuffer{state: CommandStateRecording}
	cb.CopyImageToBuffer(dst, &Buffer{})
	if !errors.Is(cb.err, ErrCommandState) {
		t.Errorf("readback from General: err = %v, want ErrCommandState", cb.err)
	}
}
