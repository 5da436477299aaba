package scanner

import (
	"github.com/buemura/jarhunter/internal/archive"
	"github.com/buemura/jarhunter/internal/log"
	"github.com/buemura/jarhunter/internal/signature"
	"github.com/buemura/jarhunter/pkg/types"
)

// probe collects the evidence for one product within one archive node.
type probe struct {
	product *signature.Product

	version     string
	hashVersion string
	marker      bool
	shaded      bool
	evidence    bool
}

func newProbes(c *signature.Catalog) []*probe {
	products := c.Products()
	probes := make([]*probe, len(products))
	for i, p := range products {
		probes[i] = &probe{product: p}
	}
	return probes
}

// observe records what entry e says about the product. It returns true when
// it consumed the entry's content.
func (p *probe) observe(e *archive.Entry) (bool, error) {
	prod := p.product
	name := e.Name

	if prod.IsMarker(name) {
		p.marker = true
	}
	if prod.IsShaded(name) {
		p.shaded = true
	}
	if prod.IsEvidence(name) {
		p.evidence = true
	}

	switch {
	case prod.IsMetadata(name):
		r, err := e.Open()
		if err != nil {
			return true, err
		}
		m, err := signature.ParseMetadata(r)
		if err != nil {
			log.Debugf("ignoring %s: %v", name, err)
			return true, nil
		}
		if prod.AcceptsMetadata(m) {
			p.version = m.Version
		}
		return true, nil

	case prod.IsHashTarget(name):
		r, err := e.Open()
		if err != nil {
			return true, err
		}
		sum, err := signature.MD5Hex(r)
		if err != nil {
			return true, err
		}
		if v, ok := prod.VersionForHash(sum); ok {
			p.hashVersion = v
		}
		return true, nil
	}
	return false, nil
}

// finding is one classified detection, not yet bound to a file.
type finding struct {
	product string
	version string
	cve     string
	status  types.Status
}

// classify turns the collected evidence into at most one finding. ok is false
// when there is nothing to report.
func (p *probe) classify(reportSafe bool) (f finding, ok bool) {
	prod := p.product
	mitigated := !p.marker && !p.shaded

	version := p.version
	if version == "" {
		version = p.hashVersion
	}

	var (
		found    bool
		concrete bool
		cve      = prod.CVE
	)

	parsed, perr := signature.Parse(version)
	if version != "" && perr != nil {
		log.Debugf("%s: unparseable version %q: %v", prod.Name, version, perr)
	}
	hasVersion := version != "" && perr == nil

	switch {
	case prod.Classify != nil && hasVersion:
		verdict := prod.Classify(parsed)
		if !verdict.Vulnerable {
			if reportSafe {
				return finding{product: prod.Name, version: version, status: types.StatusNotVulnerable}, true
			}
			return finding{}, false
		}
		found, concrete, cve = true, true, verdict.CVE

	case prod.Classify == nil:
		found = version != "" || p.marker || p.shaded || p.evidence
		concrete = version != ""

	case prod.PotentialOnly:
		found = p.marker || p.shaded || p.evidence

	default:
		found = !mitigated
	}

	if !found {
		return finding{}, false
	}
	if !concrete {
		version = types.VersionUnknown
	}

	status := types.StatusVulnerable
	switch {
	case mitigated:
		status = types.StatusMitigated
	case prod.PotentialOnly || !concrete:
		status = types.StatusPotentiallyVulnerable
	}

	return finding{product: prod.Name, version: version, cve: cve, status: status}, true
}
