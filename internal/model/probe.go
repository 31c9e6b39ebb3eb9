package model

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ProbeHardware inspects the running machine and fills a HardwareInput
// for ComputeProfile. RAM detection reads /proc/meminfo where present
// and falls back to a conservative estimate elsewhere; core topology
// uses the logical count with an SMT heuristic.
func ProbeHardware(entry Entry) HardwareInput {
	logical := runtime.NumCPU()
	physical := logical
	hasSMT := false
	if logical >= 4 && logical%2 == 0 {
		// Most consumer x86 parts expose 2 threads per core. On
		// machines without SMT this overestimates generation
		// parallelism slightly, which is harmless.
		physical = logical / 2
		hasSMT = runtime.GOARCH == "amd64"
		if !hasSMT {
			physical = logical
		}
	}

	totalMB, availableMB := probeRAMMB()

	return HardwareInput{
		TotalLayers:       estimateLayers(entry),
		ModelSizeMB:       entry.SizeMB,
		TotalRAMMB:        totalMB,
		AvailableRAMMB:    availableMB,
		LogicalCores:      logical,
		PhysicalCores:     physical,
		HasSMT:            hasSMT,
		AcceleratorFreeMB: probeAcceleratorMB(),
	}
}

// estimateLayers maps the registry entry's quality tier to a layer
// count, for proportional partial offload.
func estimateLayers(entry Entry) int {
	switch entry.QualityTier {
	case TierSmall:
		return 24
	case TierMedium:
		return 36
	case TierLarge:
		return 28
	case TierXLarge:
		return 48
	default:
		return 32
	}
}

func probeRAMMB() (total, available int) {
	const fallbackMB = 8192
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return fallbackMB, fallbackMB / 2
	}
	defer f.Close()

	values := map[string]int{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		values[key] = kb / 1024
	}

	total = values["MemTotal"]
	available = values["MemAvailable"]
	if total == 0 {
		total = fallbackMB
	}
	if available == 0 {
		available = total / 2
	}
	return total, available
}

// probeAcceleratorMB reports free memory on the best available
// accelerator. Without a GPU management library in the dependency set
// this returns 0, which ComputeProfile treats as CPU-only; the value is
// overridable for machines where the operator knows better.
func probeAcceleratorMB() int {
	if v := os.Getenv("LOCALAGENT_GPU_FREE_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil && mb > 0 {
			return mb
		}
	}
	return 0
}
