package signature

import (
	"fmt"
	"io"

	"github.com/magiconair/properties"
)

// maxMetadataSize bounds how much of a pom.properties entry is read.
const maxMetadataSize = 64 << 10

// Metadata holds the Maven coordinates declared in a pom.properties file.
type Metadata struct {
	GroupID    string
	ArtifactID string
	Version    string
}

// ParseMetadata reads Java properties text. Like java.util.Properties the
// input is decoded as ISO-8859-1 and ${...} expansion is not performed.
func ParseMetadata(r io.Reader) (Metadata, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxMetadataSize))
	if err != nil {
		return Metadata{}, fmt.Errorf("reading metadata: %w", err)
	}

	loader := &properties.Loader{
		Encoding:         properties.ISO_8859_1,
		DisableExpansion: true,
	}
	p, err := loader.LoadBytes(buf)
	if err != nil {
		return Metadata{}, fmt.Errorf("parsing metadata: %w", err)
	}

	return Metadata{
		GroupID:    p.GetString("groupId", ""),
		ArtifactID: p.GetString("artifactId", ""),
		Version:    p.GetString("version", ""),
	}, nil
}
