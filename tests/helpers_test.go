package tests_test

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/containerd/nerdctl/mod/tigron/test"
	"github.com/containerd/nerdctl/mod/tigron/tig"

	"github.com/farcloser/agar/pkg/agar"
)

// expectContains returns a comparator verifying the output contains a substring.
func expectContains(substr string) test.Comparator {
	return func(stdout string, testing tig.T) {
		testing.Helper()

		if !strings.Contains(stdout, substr) {
			testing.Log(fmt.Sprintf("expected substring %q not found in output:\n%s", substr, stdout))
			testing.Fail()
		}
	}
}

// expectPositive returns a comparator verifying that some numeric value printed for key is greater than zero.
// It matches both console ("key: 1") and JSON ("\"key\": 1") renderings.
func expectPositive(key string) test.Comparator {
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `"?:\s*(-?[0-9][0-9.eE+-]*)`)

	return func(stdout string, testing tig.T) {
		testing.Helper()

		for _, match := range pattern.FindAllStringSubmatch(stdout, -1) {
			if value, err := strconv.ParseFloat(match[1], 64); err == nil && value > 0 {
				return
			}
		}

		testing.Log(fmt.Sprintf("expected a positive %q in output:\n%s", key, stdout))
		testing.Fail()
	}
}

// mkdir creates dir and returns it.
func mkdir(dir string) string {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		panic(err)
	}

	return dir
}

// fixtureDir returns a directory named name next to the generated fixture at path.
func fixtureDir(path, name string) string {
	return mkdir(filepath.Join(filepath.Dir(path), name))
}

// copyInto copies the file at path into dir, keeping its base name.
func copyInto(path, dir string) {
	content, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	if err = os.WriteFile(filepath.Join(dir, filepath.Base(path)), content, 0o600); err != nil {
		panic(err)
	}
}

// buildDataset lays out a two class training folder from generated fixtures and records its paths as labels:
// "dataset" is the folder, "store" an empty model store next to it, "clip" a file to classify.
func buildDataset(data test.Data, helpers test.Helpers) {
	clean := agar.Genuine16bit44k(data, helpers)
	root := fixtureDir(clean, "dataset")

	emergency := mkdir(filepath.Join(root, "emergency"))
	copyInto(agar.ClippedHard(data, helpers), emergency)
	copyInto(agar.DynamicsFucked(data, helpers), emergency)

	normal := mkdir(filepath.Join(root, "normal"))
	copyInto(clean, normal)
	copyInto(agar.ProperFadeout(data, helpers), normal)

	data.Labels().Set("dataset", root)
	data.Labels().Set("store", fixtureDir(clean, "models"))
	data.Labels().Set("clip", clean)
}
