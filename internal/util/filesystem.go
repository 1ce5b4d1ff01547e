package util

import (
	"os"
	"path/filepath"
	"strings"
)

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// TrimExt returns path without its final extension ("local.fa" -> "local").
func TrimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
