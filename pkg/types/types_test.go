package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOrdering(t *testing.T) {
	assert.Less(t, int(StatusNotVulnerable), int(StatusMitigated))
	assert.Less(t, int(StatusMitigated), int(StatusPotentiallyVulnerable))
	assert.Less(t, int(StatusPotentiallyVulnerable), int(StatusVulnerable))

	assert.Equal(t, StatusVulnerable, Worst(StatusMitigated, StatusVulnerable))
	assert.Equal(t, StatusMitigated, Worst(StatusMitigated, StatusNotVulnerable))
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(ReportEntry{Status: StatusPotentiallyVulnerable})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"POTENTIALLY_VULNERABLE"`)

	var e ReportEntry
	require.NoError(t, json.Unmarshal(b, &e))
	assert.Equal(t, StatusPotentiallyVulnerable, e.Status)
}

func TestParseStatus_Unknown(t *testing.T) {
	_, err := ParseStatus("BROKEN")
	assert.Error(t, err)
}

func TestReportEntryLocation(t *testing.T) {
	e := ReportEntry{Path: "/opt/app.ear"}
	assert.Equal(t, "/opt/app.ear", e.Location())
	assert.Equal(t, "", e.Entry())

	e.Chain = []string{"lib/web.war", "WEB-INF/lib/log4j-core-2.14.1.jar"}
	assert.Equal(t, "lib/web.war > WEB-INF/lib/log4j-core-2.14.1.jar", e.Entry())
	assert.Equal(t, "/opt/app.ear (lib/web.war > WEB-INF/lib/log4j-core-2.14.1.jar)", e.Location())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want ArchiveKind
	}{
		{"app.jar", KindJar},
		{"APP.WAR", KindWar},
		{"lib/x.ear", KindEar},
		{"android.aar", KindAar},
		{"adapter.rar", KindRar},
		{"nifi.nar", KindNar},
		{"bundle.zip", KindZip},
		{`C:\apps\server.jar`, KindJar},
		{"readme.txt", KindNone},
		{"jar", KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.name))
		})
	}
}

func TestIsScanTarget_ZipOptIn(t *testing.T) {
	assert.True(t, IsScanTarget("a.jar", false))
	assert.False(t, IsScanTarget("a.zip", false))
	assert.True(t, IsScanTarget("a.zip", true))
	assert.False(t, IsScanTarget("a.class", true))
}

func TestCountByStatus(t *testing.T) {
	r := Report{Entries: []ReportEntry{
		{Status: StatusVulnerable},
		{Status: StatusVulnerable},
		{Status: StatusMitigated},
	}}
	counts := r.CountByStatus()
	assert.Equal(t, 2, counts[StatusVulnerable])
	assert.Equal(t, 1, counts[StatusMitigated])
	assert.Equal(t, 0, counts[StatusPotentiallyVulnerable])
}
