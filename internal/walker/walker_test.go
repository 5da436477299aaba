package walker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buemura/jarhunter/internal/scanner"
)

func touch(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func walkAll(t *testing.T, opts Options, roots ...string) ([]string, *scanner.Aggregator) {
	t.Helper()
	agg := scanner.NewAggregator(false, time.Now())
	w := New(opts, agg, &bytes.Buffer{})

	paths := make(chan string, 64)
	require.NoError(t, w.Walk(context.Background(), roots, paths))
	close(paths)

	var got []string
	for p := range paths {
		got = append(got, p)
	}
	return got, agg
}

func fixtureTree(t *testing.T) string {
	dir := t.TempDir()
	zipMagic := []byte("PK\x03\x04")
	touch(t, filepath.Join(dir, "app.jar"), zipMagic)
	touch(t, filepath.Join(dir, "bundle.zip"), zipMagic)
	touch(t, filepath.Join(dir, "notes.txt"), []byte("hi"))
	touch(t, filepath.Join(dir, "sub", "web.WAR"), zipMagic)
	touch(t, filepath.Join(dir, "sub", "adapter.rar"), zipMagic)
	touch(t, filepath.Join(dir, "sub", "photos.rar"), rar5Magic)
	touch(t, filepath.Join(dir, "sub", "old.rar"), append(append([]byte{}, rar4Magic...), 0xCF))
	touch(t, filepath.Join(dir, "skipme", "hidden.jar"), zipMagic)
	return dir
}

func TestWalk_FindsScanTargets(t *testing.T) {
	dir := fixtureTree(t)

	got, agg := walkAll(t, Options{}, dir)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "app.jar"),
		filepath.Join(dir, "sub", "web.WAR"),
		filepath.Join(dir, "sub", "adapter.rar"),
		filepath.Join(dir, "skipme", "hidden.jar"),
	}, got)

	m := agg.Metrics()
	assert.Equal(t, int64(3), m.ScanDirCount)
	assert.Equal(t, int64(8), m.ScanFileCount)
}

func TestWalk_ScanZip(t *testing.T) {
	dir := fixtureTree(t)
	got, _ := walkAll(t, Options{ScanZip: true}, dir)
	assert.Contains(t, got, filepath.Join(dir, "bundle.zip"))
}

func TestWalk_Excludes(t *testing.T) {
	dir := fixtureTree(t)

	ex, err := NewExcluder([]string{filepath.Join(dir, "skipme")}, nil)
	require.NoError(t, err)
	got, _ := walkAll(t, Options{Excludes: ex}, dir)
	assert.NotContains(t, got, filepath.Join(dir, "skipme", "hidden.jar"))
	assert.Contains(t, got, filepath.Join(dir, "app.jar"))

	ex, err = NewExcluder(nil, []string{"sub"})
	require.NoError(t, err)
	got, _ = walkAll(t, Options{Excludes: ex}, dir)
	assert.NotContains(t, got, filepath.Join(dir, "sub", "web.WAR"))
}

func TestWalk_FileRoot(t *testing.T) {
	dir := fixtureTree(t)
	jar := filepath.Join(dir, "app.jar")
	got, agg := walkAll(t, Options{}, jar, filepath.Join(dir, "notes.txt"))
	assert.Equal(t, []string{jar}, got)
	assert.Equal(t, int64(2), agg.Metrics().ScanFileCount)
}

func TestWalk_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := fixtureTree(t)
	other := t.TempDir()
	touch(t, filepath.Join(other, "outside.jar"), []byte("PK\x03\x04"))

	require.NoError(t, os.Symlink(filepath.Join(dir, "app.jar"), filepath.Join(dir, "link.jar")))
	require.NoError(t, os.Symlink(other, filepath.Join(dir, "linkdir")))

	got, _ := walkAll(t, Options{}, dir)
	assert.Contains(t, got, filepath.Join(dir, "link.jar"))
	for _, p := range got {
		assert.False(t, strings.Contains(p, "outside.jar"), "symlinked directories are not followed")
	}

	got, _ = walkAll(t, Options{NoSymlink: true}, dir)
	assert.NotContains(t, got, filepath.Join(dir, "link.jar"))
}

func TestWalk_Cancel(t *testing.T) {
	dir := fixtureTree(t)
	agg := scanner.NewAggregator(false, time.Now())
	w := New(Options{}, agg, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Walk(ctx, []string{dir}, make(chan string))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalk_Throttle(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.jar", "b.jar", "c.jar"} {
		touch(t, filepath.Join(dir, n), []byte("PK"))
	}
	start := time.Now()
	got, _ := walkAll(t, Options{Throttle: 50}, dir)
	assert.Len(t, got, 3)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestExcluder(t *testing.T) {
	ex, err := newExcluder([]string{"/opt/app"}, []string{"node_modules", "/home/*/cache*"}, false)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/opt/app", true},
		{"/opt/app/lib", true},
		{"/opt/other", false},
		{"/srv/web/node_modules/x", true},
		{"/home/bob/cache", true},
		{"/home/bob/cache-old", true},
		{"/home/bob/src", false},
		{"/OPT/APP", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Match(tt.path))
		})
	}

	var none *Excluder
	assert.False(t, none.Match("/anything"))
}

func TestExcluder_FoldsCaseOnWindows(t *testing.T) {
	ex, err := newExcluder(nil, []string{"Temp"}, true)
	require.NoError(t, err)
	assert.True(t, ex.Match(`C:\Users\bob\AppData\Local\TEMP\x`))
}

func TestExcluder_InvalidGlob(t *testing.T) {
	_, err := newExcluder(nil, []string{"[unclosed"}, false)
	assert.Error(t, err)
}

func TestIsSystemDir(t *testing.T) {
	assert.True(t, isSystemDir("/proc", false))
	assert.True(t, isSystemDir("/proc/1/fd", false))
	assert.True(t, isSystemDir("/var/run", false))
	assert.False(t, isSystemDir("/process", false))
	assert.False(t, isSystemDir("/home", false))

	assert.True(t, isSystemDir(`C:\$Recycle.Bin`, true))
	assert.False(t, isSystemDir(`C:\Users\$RECYCLE.BIN`, true))
}

func TestLoadPathList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "include.txt")
	touch(t, path, []byte("# targets\n/opt/app\n\n  /srv/web  \n#/tmp\n"))

	got, err := LoadPathList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/app", "/srv/web"}, got)

	_, err = LoadPathList(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func fakePartitions(t *testing.T, parts []disk.PartitionStat, err error) {
	prev := partitions
	t.Cleanup(func() { partitions = prev })
	partitions = func(bool) ([]disk.PartitionStat, error) { return parts, err }
}

func TestAllDrives(t *testing.T) {
	fakePartitions(t, []disk.PartitionStat{
		{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
		{Device: "/dev/sdb1", Mountpoint: "/data", Fstype: "xfs"},
		{Device: "server:/export", Mountpoint: "/mnt/nfs", Fstype: "nfs4"},
		{Device: `\\fileserver\share`, Mountpoint: "Z:", Fstype: "NTFS"},
		{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
	}, nil)

	roots, err := AllDrives()
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/data"}, roots)
}

func TestExcludedMounts(t *testing.T) {
	fakePartitions(t, []disk.PartitionStat{
		{Mountpoint: "/", Fstype: "ext4"},
		{Mountpoint: "/tmp", Fstype: "tmpfs"},
		{Mountpoint: "/media/cd", Fstype: "iso9660"},
		{Mountpoint: "/mnt/share", Fstype: "cifs"},
	}, nil)

	got, err := ExcludedMounts(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp", "/media/cd"}, got)

	got, err = ExcludedMounts([]string{" CIFS "})
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/share"}, got)

	fakePartitions(t, nil, errors.New("no mtab"))
	_, err = ExcludedMounts(nil)
	assert.ErrorContains(t, err, "no mtab")
}

func TestDriveRoots(t *testing.T) {
	if runtime.GOOS != "windows" {
		_, err := DriveRoots([]string{"c"})
		assert.ErrorContains(t, err, "Windows only")
		return
	}
	_, err := DriveRoots([]string{"cd"})
	assert.ErrorContains(t, err, "invalid drive letter")
}
