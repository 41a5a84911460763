package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SmConfig holds the hardware parameters of one streaming multiprocessor
// class. All register quantities are counted in 32-bit registers.
type SmConfig struct {
	MaxBlocks       int `yaml:"max_blocks"`
	MaxThreads      int `yaml:"max_threads"`
	MaxWarps        int `yaml:"max_warps"`
	RegFileSize     int `yaml:"reg_file_size"`
	SmemBytes       int `yaml:"smem_bytes"`
	RegGranularity  int `yaml:"reg_granularity"`
	SmemGranularity int `yaml:"smem_granularity"`
	WarpSize        int `yaml:"warp_size"`
}

// Validate checks that every capacity and granularity is positive.
func (c SmConfig) Validate() error {
	if c.MaxBlocks <= 0 || c.MaxThreads <= 0 || c.MaxWarps <= 0 ||
		c.RegFileSize <= 0 || c.SmemBytes <= 0 {
		return fmt.Errorf("SM config: all capacities must be > 0")
	}
	if c.RegGranularity <= 0 || c.SmemGranularity <= 0 {
		return fmt.Errorf("SM config: allocation granularities must be > 0")
	}
	if c.WarpSize != WarpSize {
		return fmt.Errorf("SM config: warp size must be %d, got %d", WarpSize, c.WarpSize)
	}
	return nil
}

// H100SmConfig returns the SM parameters of the Hopper H100.
func H100SmConfig() SmConfig {
	return SmConfig{
		MaxBlocks:       32,
		MaxThreads:      2048,
		MaxWarps:        64,
		RegFileSize:     65536,
		SmemBytes:       228 * 1024,
		RegGranularity:  256,
		SmemGranularity: 128,
		WarpSize:        WarpSize,
	}
}

// A100SmConfig returns the SM parameters of the Ampere A100. Same structure
// as the H100 with a smaller shared memory carveout.
func A100SmConfig() SmConfig {
	return SmConfig{
		MaxBlocks:       32,
		MaxThreads:      2048,
		MaxWarps:        64,
		RegFileSize:     65536,
		SmemBytes:       164 * 1024,
		RegGranularity:  256,
		SmemGranularity: 128,
		WarpSize:        WarpSize,
	}
}

// HardwareSpec describes one GPU class: SM count, memory capacities, and the
// per-SM configuration.
type HardwareSpec struct {
	Name     string   `yaml:"name"`
	NumSMs   int      `yaml:"num_sms"`
	HBMBytes int64    `yaml:"hbm_bytes"`
	L2Bytes  int64    `yaml:"l2_bytes"`
	SM       SmConfig `yaml:"sm"`
}

// Validate checks the spec's geometry and delegates to the SM config.
func (s HardwareSpec) Validate() error {
	if s.NumSMs <= 0 {
		return fmt.Errorf("hardware %q: SM count must be > 0, got %d", s.Name, s.NumSMs)
	}
	if s.HBMBytes <= 0 || s.L2Bytes <= 0 {
		return fmt.Errorf("hardware %q: memory capacities must be > 0", s.Name)
	}
	if err := s.SM.Validate(); err != nil {
		return fmt.Errorf("hardware %q: %w", s.Name, err)
	}
	return nil
}

// H100Spec returns the full-GPU H100 description (132 SMs, 80 GiB HBM3).
func H100Spec() HardwareSpec {
	return HardwareSpec{
		Name:     "H100",
		NumSMs:   132,
		HBMBytes: 80 << 30,
		L2Bytes:  50 << 20,
		SM:       H100SmConfig(),
	}
}

// A100Spec returns the full-GPU A100 description (108 SMs, 80 GiB HBM2e).
func A100Spec() HardwareSpec {
	return HardwareSpec{
		Name:     "A100",
		NumSMs:   108,
		HBMBytes: 80 << 30,
		L2Bytes:  40 << 20,
		SM:       A100SmConfig(),
	}
}

// LoadHardwareSpec reads a HardwareSpec from a YAML file. Fields omitted in
// the file default to the H100 values, so a spec file only needs to name the
// parameters it overrides.
func LoadHardwareSpec(path string) (HardwareSpec, error) {
	spec := H100Spec()
	data, err := os.ReadFile(path)
	if err != nil {
		return HardwareSpec{}, fmt.Errorf("read hardware spec: %w", err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return HardwareSpec{}, fmt.Errorf("parse hardware spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return HardwareSpec{}, err
	}
	return spec, nil
}
