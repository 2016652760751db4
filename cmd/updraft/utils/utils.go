package utils

import (
	"fmt"
	"os"

	glog "github.com/magicsong/color-glog"
)

func IsFileExists(path string) bool {
	glog.V(6).Infof("Checking if file exists at path=%q", path)
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// WriteFileAtomic writes data to a sibling temp file and renames it
// into place, so an interrupted write never leaves a truncated file
// at path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := fmt.Sprintf("%s.TEMP", path)
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
