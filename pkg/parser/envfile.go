package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// MergedEnvironment resolves the process environment for a service: env_file
// entries in declaration order, then inline environment entries. A later
// source wins for a repeated key. Relative env_file paths are resolved
// against baseDir, the directory holding the descriptor.
func MergedEnvironment(svc Service, baseDir string) ([]string, error) {
	merged := map[string]string{}

	for _, file := range svc.EnvFile {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", file, err)
		}
		for k, v := range vars {
			merged[k] = v
		}
	}

	for _, entry := range svc.Environment {
		key, val, found := strings.Cut(entry, "=")
		if !found {
			// bare key: pass through from the orchestrator's environment
			val = os.Getenv(key)
		}
		merged[key] = val
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env, nil
}
