// Package build turns compiled Elm output into cache-busted production
// artifacts.
//
// Artifacts are named by a short content hash, references to static assets
// inside compiled output are rewritten to their hashed public URLs, and a
// manifest per artifact class maps logical names to hashed filenames.
package build

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
)

// HashLength is the number of hex characters kept from the content hash.
const HashLength = 8

// Hash returns the short content hash of contents: the first HashLength hex
// digits (high 32 bits) of its xxHash64 digest.
func Hash(contents []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(contents))[:HashLength]
}

// DeriveFilename returns the cache-busted filename for contents with the
// given extension (".js", ".css", ".png").
func DeriveFilename(contents []byte, ext string) string {
	return Hash(contents) + ext
}

// HashFile reads path and returns its contents and short hash.
func HashFile(path string) ([]byte, string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	return contents, Hash(contents), nil
}
