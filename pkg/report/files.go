package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// atomicWriteJSON writes v to path through a temp file and rename, so
// readers polling the report never see a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path) //#nosec G304 -- path is inside the report directory
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ReadReport loads report.json and every device detail file it references.
// Devices whose detail file is missing (never started) get a nil entry.
func ReadReport(reportDir string) (*Index, []*DeviceDetail, error) {
	var index Index
	if err := readJSON(filepath.Join(reportDir, "report.json"), &index); err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}

	details := make([]*DeviceDetail, len(index.Devices))
	for i, d := range index.Devices {
		var detail DeviceDetail
		err := readJSON(filepath.Join(reportDir, d.DataFile), &detail)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", d.DataFile, err)
		}
		details[i] = &detail
	}
	return &index, details, nil
}
