package model

import "math"

// KVCacheType selects the quantization of the KV cache.
type KVCacheType string

const (
	KVCache8Bit KVCacheType = "q8_0"
	KVCache4Bit KVCacheType = "q4_0"
)

// HardwareProfile is the inference configuration derived from detected
// hardware.
type HardwareProfile struct {
	// GPULayers is the number of model layers offloaded to the best
	// available accelerator; 0 means CPU-only.
	GPULayers int
	// TotalLayers is the model's total layer count, for reference.
	TotalLayers int

	// GenerationThreads is used for memory-bandwidth-bound token
	// generation (~physical cores, ~50% of logical on SMT machines).
	GenerationThreads int
	// PrefillThreads is used for compute-bound prompt prefill
	// (~75-85% of logical cores).
	PrefillThreads int

	BatchSize    int
	ContextSize  int
	KVCacheType  KVCacheType
	MemoryLocked bool
}

// HardwareInput describes the detected machine, passed in rather than
// probed directly so the computation is pure and testable.
type HardwareInput struct {
	TotalLayers        int
	ModelSizeMB        int
	TotalRAMMB         int
	AvailableRAMMB     int
	LogicalCores       int
	PhysicalCores      int
	HasSMT             bool
	AcceleratorFreeMB  int // 0 when no discrete accelerator is present
}

// ComputeProfile derives the inference configuration:
//   - full model + 20% headroom fits on the accelerator => all layers offload
//   - otherwise proportional partial offload
//   - fewer than 2 fitting layers => CPU only
//   - generation threads ~= physical cores (~50% of logical on SMT)
//   - prefill threads ~= 75-85% of logical cores
//   - batch size / context window scaled to available RAM after model load
//   - KV cache: 8-bit default, 4-bit below 4 GiB RAM
//   - page-lock only when >= 1.5*model + 1 GiB headroom exists
func ComputeProfile(in HardwareInput) HardwareProfile {
	p := HardwareProfile{TotalLayers: in.TotalLayers}

	p.GPULayers = offloadLayers(in)

	if in.HasSMT {
		p.GenerationThreads = maxInt(1, in.LogicalCores/2)
	} else {
		p.GenerationThreads = maxInt(1, in.PhysicalCores)
	}
	p.PrefillThreads = maxInt(1, int(math.Round(float64(in.LogicalCores)*0.8)))

	ramAfterModel := in.AvailableRAMMB - in.ModelSizeMB
	p.BatchSize, p.ContextSize = scaleToRAM(ramAfterModel)

	if in.TotalRAMMB < 4096 {
		p.KVCacheType = KVCache4Bit
	} else {
		p.KVCacheType = KVCache8Bit
	}

	requiredForLock := int(1.5*float64(in.ModelSizeMB)) + 1024
	p.MemoryLocked = in.AvailableRAMMB >= requiredForLock

	return p
}

func offloadLayers(in HardwareInput) int {
	if in.TotalLayers == 0 {
		return 0
	}
	if in.AcceleratorFreeMB == 0 {
		return 0
	}

	fullWithHeadroom := int(float64(in.ModelSizeMB) * 1.2)
	if in.AcceleratorFreeMB >= fullWithHeadroom {
		return in.TotalLayers
	}

	perLayerMB := float64(in.ModelSizeMB) / float64(in.TotalLayers)
	if perLayerMB <= 0 {
		return 0
	}
	fitting := int(float64(in.AcceleratorFreeMB) / perLayerMB)
	if fitting < 2 {
		return 0
	}
	if fitting > in.TotalLayers {
		fitting = in.TotalLayers
	}
	return fitting
}

// scaleToRAM maps remaining RAM after the model is loaded to a batch
// size and context window. Thresholds are coarse bands, not a
// continuous formula.
func scaleToRAM(ramAfterModelMB int) (batchSize, contextSize int) {
	switch {
	case ramAfterModelMB >= 8192:
		return 512, 8192
	case ramAfterModelMB >= 4096:
		return 256, 4096
	case ramAfterModelMB >= 2048:
		return 128, 2048
	default:
		return 64, 1024
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
