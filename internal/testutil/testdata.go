// Package testutil loads shared test fixtures from its testdata directory.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// Fixture returns the contents of testdata/name.
func Fixture(name string) ([]byte, error) {
	_, currentFile, _, _ := runtime.Caller(0)
	return os.ReadFile(filepath.Join(filepath.Dir(currentFile), "testdata", name))
}

// LoadJSON reads testdata/name and unmarshals it into target.
func LoadJSON(name string, target any) error {
	data, err := Fixture(name)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
