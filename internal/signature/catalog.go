package signature

import (
	"sort"
	"strings"

	"github.com/buemura/jarhunter/pkg/types"
)

// Product describes how one library is recognized inside an archive.
// Products are built by NewCatalog and must not be modified afterwards.
type Product struct {
	Name string
	// CVE is reported when Classify is nil or no version is known.
	CVE string

	MetadataPath string
	// GroupID and ArtifactID, when set, must match the metadata for its
	// version to be taken.
	GroupID    string
	ArtifactID string

	// Markers are canonical class paths whose presence leaves the product
	// unmitigated. ShadeSuffixes find the same classes under relocated
	// package prefixes.
	Markers       []string
	ShadeSuffixes []string

	// Evidence paths and suffixes prove the product is present without
	// affecting mitigation.
	Evidence         []string
	EvidenceSuffixes []string

	// HashSuffix names a class whose MD5 identifies the release when the
	// metadata has been stripped.
	HashSuffix string
	Hashes     map[string]string

	DeleteTargets []string
	// ShadeRoot is the package fragment used to derive relocated delete
	// patterns from DeleteTargets.
	ShadeRoot string

	// Classify is nil for products detected by class presence alone.
	Classify func(Version) Verdict
	// PotentialOnly products never produce a confirmed VULNERABLE status.
	PotentialOnly bool
}

// IsMetadata reports whether name is the product's pom.properties entry.
func (p *Product) IsMetadata(name string) bool {
	return p.MetadataPath != "" && name == p.MetadataPath
}

// AcceptsMetadata reports whether the parsed coordinates belong to p.
func (p *Product) AcceptsMetadata(m Metadata) bool {
	if m.Version == "" {
		return false
	}
	if p.GroupID != "" && m.GroupID != p.GroupID {
		return false
	}
	if p.ArtifactID != "" && m.ArtifactID != p.ArtifactID {
		return false
	}
	return true
}

// IsMarker reports an exact canonical marker match.
func (p *Product) IsMarker(name string) bool {
	return contains(p.Markers, name)
}

// IsShaded reports a relocated marker match.
func (p *Product) IsShaded(name string) bool {
	return hasAnySuffix(name, p.ShadeSuffixes)
}

// IsEvidence reports a presence-only class match, canonical or relocated.
func (p *Product) IsEvidence(name string) bool {
	return contains(p.Evidence, name) || hasAnySuffix(name, p.EvidenceSuffixes)
}

// IsHashTarget reports whether the entry should be fingerprinted.
func (p *Product) IsHashTarget(name string) bool {
	return p.HashSuffix != "" && strings.HasSuffix(name, p.HashSuffix)
}

// VersionForHash maps a known MD5 digest to a release version.
func (p *Product) VersionForHash(md5 string) (string, bool) {
	v, ok := p.Hashes[md5]
	return v, ok
}

// Options selects which products a catalog covers. Log4j 2 is always on.
type Options struct {
	Log4j1      bool
	Logback     bool
	CommonsText bool
}

// Catalog is the read-only set of product signatures for one run. It is safe
// for concurrent use.
type Catalog struct {
	products      []*Product
	deleteTargets map[string]struct{}
	shadeSuffixes []string
}

// NewCatalog builds a catalog for the enabled products.
func NewCatalog(opts Options) *Catalog {
	products := []*Product{log4j2()}
	if opts.Log4j1 {
		products = append(products, log4j1())
	}
	if opts.Logback {
		products = append(products, logback())
	}
	if opts.CommonsText {
		products = append(products, commonsText())
	}

	c := &Catalog{
		products:      products,
		deleteTargets: make(map[string]struct{}),
	}

	seen := make(map[string]bool)
	for _, p := range products {
		for _, target := range p.DeleteTargets {
			c.deleteTargets[target] = struct{}{}
			if p.ShadeRoot == "" {
				continue
			}
			if i := strings.Index(target, p.ShadeRoot); i > 0 && !seen[target[i:]] {
				seen[target[i:]] = true
				c.shadeSuffixes = append(c.shadeSuffixes, target[i:])
			}
		}
	}
	sort.Strings(c.shadeSuffixes)

	return c
}

// Products returns the enabled products in detection order.
func (c *Catalog) Products() []*Product {
	return c.products
}

// Product looks up an enabled product by report name.
func (c *Catalog) Product(name string) *Product {
	for _, p := range c.products {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// DeleteTargets returns the exact entry paths removed by a fix, sorted.
func (c *Catalog) DeleteTargets() []string {
	out := make([]string, 0, len(c.deleteTargets))
	for t := range c.deleteTargets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ShadeSuffixes returns the relocated delete patterns, sorted.
func (c *Catalog) ShadeSuffixes() []string {
	return append([]string(nil), c.shadeSuffixes...)
}

// ShouldDelete reports whether a fix removes the entry.
func (c *Catalog) ShouldDelete(name string) bool {
	if _, ok := c.deleteTargets[name]; ok {
		return true
	}
	return hasAnySuffix(name, c.shadeSuffixes)
}

func log4j2() *Product {
	return &Product{
		Name:          types.ProductLog4j2,
		CVE:           CVELog4Shell,
		MetadataPath:  "META-INF/maven/org.apache.logging.log4j/log4j-core/pom.properties",
		GroupID:       "org.apache.logging.log4j",
		ArtifactID:    "log4j-core",
		Markers:       []string{"org/apache/logging/log4j/core/lookup/JndiLookup.class"},
		ShadeSuffixes: []string{"/log4j/core/lookup/JndiLookup.class"},
		DeleteTargets: []string{"org/apache/logging/log4j/core/lookup/JndiLookup.class"},
		ShadeRoot:     "/log4j",
		Classify:      ClassifyLog4j2,
	}
}

func log4j1() *Product {
	deletes := make([]string, 0, 4)
	for _, class := range []string{"SocketServer.class", "JMSAppender.class", "SMTPAppender$1.class", "SMTPAppender.class"} {
		deletes = append(deletes, "org/apache/log4j/net/"+class)
	}
	return &Product{
		Name:             types.ProductLog4j1,
		CVE:              CVELog4j1JMSAppender,
		MetadataPath:     "META-INF/maven/log4j/log4j/pom.properties",
		Markers:          []string{"org/apache/log4j/net/JMSAppender.class"},
		ShadeSuffixes:    []string{"/log4j/net/JMSAppender.class"},
		Evidence:         []string{"org/apache/log4j/net/JMSSink.class"},
		EvidenceSuffixes: []string{"/log4j/net/JMSSink.class"},
		DeleteTargets:    deletes,
		ShadeRoot:        "/log4j",
		PotentialOnly:    true,
	}
}

func logback() *Product {
	return &Product{
		Name:          types.ProductLogback,
		CVE:           CVELogbackJNDI,
		MetadataPath:  "META-INF/maven/ch.qos.logback/logback-classic/pom.properties",
		GroupID:       "ch.qos.logback",
		ArtifactID:    "logback-classic",
		Markers:       []string{"ch/qos/logback/classic/util/JNDIUtil.class"},
		Evidence:      []string{"ch/qos/logback/classic/util/EnvUtil.class"},
		Classify:      ClassifyLogback,
		PotentialOnly: true,
	}
}

func commonsText() *Product {
	return &Product{
		Name:          types.ProductCommonsText,
		CVE:           CVECommonsText,
		MetadataPath:  "META-INF/maven/org.apache.commons/commons-text/pom.properties",
		GroupID:       "org.apache.commons",
		ArtifactID:    "commons-text",
		Markers:       []string{"org/apache/commons/text/StringSubstitutor.class"},
		ShadeSuffixes: []string{"/commons/text/StringSubstitutor.class"},
		HashSuffix:    "/commons/text/WordUtils.class",
		Hashes: map[string]string{
			"824b0d4b505f13d8ce318a7d55bb4b83": "1.10.0",
			"48e58baa150997f6a30a9fc334f9b0b3": "1.9",
			// 1.8 ships the same WordUtils as 1.7, and 1.6 the same as 1.5.
			"a37e99a5a2f32119abf4099d4d676dad": "1.7",
			"ecac671470dc8853f1387247fae412df": "1.5",
			"038f37a7cca07bb09c40aa14fd7e9664": "1.4",
			"19c6368c3ebc4e484c6017c320eb512e": "1.3",
		},
		DeleteTargets: []string{"org/apache/commons/text/StringSubstitutor.class"},
		ShadeRoot:     "/commons/text",
		Classify:      ClassifyCommonsText,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
