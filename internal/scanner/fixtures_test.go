package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

const (
	log4j2Pom       = "META-INF/maven/org.apache.logging.log4j/log4j-core/pom.properties"
	jndiLookup      = "org/apache/logging/log4j/core/lookup/JndiLookup.class"
	log4j1Pom       = "META-INF/maven/log4j/log4j/pom.properties"
	jmsAppender     = "org/apache/log4j/net/JMSAppender.class"
	jmsSink         = "org/apache/log4j/net/JMSSink.class"
	logbackPom      = "META-INF/maven/ch.qos.logback/logback-classic/pom.properties"
	logbackJNDIUtil = "ch/qos/logback/classic/util/JNDIUtil.class"
	logbackEnvUtil  = "ch/qos/logback/classic/util/EnvUtil.class"
	commonsTextPom  = "META-INF/maven/org.apache.commons/commons-text/pom.properties"
	substitutor     = "org/apache/commons/text/StringSubstitutor.class"
)

type zipFile struct {
	name    string
	body    []byte
	nonUTF8 bool
}

func file(name string, body []byte) zipFile { return zipFile{name: name, body: body} }

func class(name string) zipFile { return zipFile{name: name, body: []byte("\xca\xfe\xba\xbe")} }

func zipBytes(t *testing.T, files ...zipFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, NonUTF8: f.nonUTF8})
		require.NoError(t, err)
		_, err = w.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func pom(group, artifact, version string) []byte {
	return []byte(fmt.Sprintf("#Generated by Maven\ngroupId=%s\nartifactId=%s\nversion=%s\n", group, artifact, version))
}

func log4jCore(t *testing.T, version string, withLookup bool) []byte {
	t.Helper()
	files := []zipFile{
		file("META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n")),
		file(log4j2Pom, pom("org.apache.logging.log4j", "log4j-core", version)),
		class("org/apache/logging/log4j/core/Logger.class"),
	}
	if withLookup {
		files = append(files, class(jndiLookup))
	}
	return zipBytes(t, files...)
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
