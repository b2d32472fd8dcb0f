package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	OutputDir string     // Base output directory for reports
	Scenario  string     // Scenario name, also used as the job name
	App       App        // Application under test
	Runner    RunnerInfo // Runner settings
}

// BuildSkeleton creates the initial report structure for a device matrix.
// Every device starts out pending.
func BuildSkeleton(specs []device.Spec, cfg BuilderConfig) *Index {
	now := time.Now()

	index := &Index{
		Version:     Version,
		RunID:       uuid.NewString(),
		Status:      core.StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Scenario:    cfg.Scenario,
		App:         cfg.App,
		Runner:      cfg.Runner,
		Summary: Summary{
			Total:   len(specs),
			Pending: len(specs),
		},
		Devices: make([]DeviceEntry, len(specs)),
	}

	for i, spec := range specs {
		id := DeviceID(i)
		index.Devices[i] = DeviceEntry{
			Index:           i,
			ID:              id,
			PlatformName:    spec.PlatformName,
			DeviceName:      spec.DeviceName,
			PlatformVersion: spec.PlatformVersion,
			JobName:         cfg.Scenario,
			DataFile:        filepath.Join("devices", id+".json"),
			AssetsDir:       filepath.Join("assets", id),
			Status:          core.StatusPending,
		}
	}

	return index
}

// DeviceID returns the report ID of the matrix row at index i.
func DeviceID(i int) string {
	return fmt.Sprintf("device-%03d", i)
}

// WriteSkeleton writes the initial index and creates the per-device directories.
func WriteSkeleton(outputDir string, index *Index) error {
	if err := ensureDir(filepath.Join(outputDir, "devices")); err != nil {
		return fmt.Errorf("create devices dir: %w", err)
	}
	for _, d := range index.Devices {
		if err := ensureDir(filepath.Join(outputDir, d.AssetsDir)); err != nil {
			return fmt.Errorf("create assets dir for %s: %w", d.ID, err)
		}
	}

	if err := atomicWriteJSON(filepath.Join(outputDir, "report.json"), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
