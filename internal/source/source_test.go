package source

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePinComment(t *testing.T) {
	tests := []struct {
		comment string
		want    int
		ok      bool
	}{
		{"beat:12", 12, true},
		{"BEAT: 3", 3, true},
		{"favourite, beat:7 please", 7, true},
		{"  42 ", 42, true},
		{"", 0, false},
		{"beat:0", 0, false},
		{"0", 0, false},
		{"beach day", 0, false},
		{"12 photos", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			got, ok := ParsePinComment(tt.comment)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-01-02T09:30:00Z",
		"2024-01-02T10:30:00+01:00",
		"2024-01-02T09:30:00",
		"2024-01-02 09:30:00",
		"2024:01:02 09:30:00",
	} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}

	day, err := ParseTimestamp("2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestampFromFilename(t *testing.T) {
	got, ok := TimestampFromFilename("/shots/Screenshot 2024-03-09 at 14.05.33.png")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 9, 14, 5, 33, 0, time.UTC), got)

	_, ok = TimestampFromFilename("/shots/IMG_0001.jpg")
	assert.False(t, ok)
}

const testManifest = `
audio:
  path: song.wav
  duration: 12.5
photos:
  - path: b.jpg
    taken: "2024-01-02T10:00:00Z"
    comment: "beat:4"
  - path: a.jpg
    taken: "2024:01:01 10:00:00"
  - path: c.jpg
    taken: "2024-01-03T10:00:00Z"
    comment: "beat:4"
    pin: 2
  - path: broken.jpg
    taken: someday
  - taken: "2024-01-05T10:00:00Z"
  - path: Screenshot 2024-01-04 at 08.00.00.png
  - path: a.jpg
    taken: "2024-01-09T10:00:00Z"
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestManifestSource(t *testing.T) {
	path := writeManifest(t, testManifest)
	m, err := LoadManifest(path)
	require.NoError(t, err)
	dir := filepath.Dir(path)

	require.NotNil(t, m.Audio)
	assert.Equal(t, 12.5, m.Audio.Duration)
	assert.Equal(t, filepath.Join(dir, "song.wav"), m.Resolve(m.Audio.Path))

	src := &ManifestSource{Manifest: m, Logger: quietLogger()}
	items, err := src.Items(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 4)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), items[0].ID)
	assert.Equal(t, 0, items[0].Pin)
	assert.Equal(t, filepath.Join(dir, "b.jpg"), items[1].ID)
	assert.Equal(t, 4, items[1].Pin)
	assert.Equal(t, filepath.Join(dir, "c.jpg"), items[2].ID)
	assert.Equal(t, 2, items[2].Pin, "explicit pin wins over comment")
	assert.Equal(t, time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC), items[3].Timestamp)
}

func TestManifestSource_RequireFiles(t *testing.T) {
	path := writeManifest(t, `
photos:
  - path: here.jpg
    taken: "2024-01-01T00:00:00Z"
  - path: gone.jpg
    taken: "2024-01-02T00:00:00Z"
`)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "here.jpg"), []byte("x"), 0o644))
	m, err := LoadManifest(path)
	require.NoError(t, err)

	items, err := (&ManifestSource{Manifest: m, RequireFiles: true, Logger: quietLogger()}).Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "here.jpg", filepath.Base(items[0].ID))
}

func TestManifestSource_NoItems(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "photos:\n  - path: x.jpg\n    taken: never\n"))
	require.NoError(t, err)

	_, err = (&ManifestSource{Manifest: m, Logger: quietLogger()}).Items(context.Background())
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestLoadManifest_UnknownField(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "fotos: []\n"))
	assert.Error(t, err)
}

func TestFileUID(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))

	ca, err := FileUID(a, IDContent)
	require.NoError(t, err)
	cb, err := FileUID(b, IDContent)
	require.NoError(t, err)
	assert.Equal(t, ca, cb, "content uids depend only on bytes")
	sum := md5.Sum([]byte("same bytes"))
	assert.Equal(t, ir.UIDFromKey(hex.EncodeToString(sum[:])), ca)

	pa, err := FileUID(a, IDPath)
	require.NoError(t, err)
	assert.Equal(t, ir.UIDFromKey(a), pa)

	ia, err := FileUID(a, IDInode)
	require.NoError(t, err)
	ib, err := FileUID(b, IDInode)
	require.NoError(t, err)
	assert.NotEqual(t, ia, ib, "distinct files have distinct inodes")

	renamed := filepath.Join(dir, "renamed.jpg")
	require.NoError(t, os.Rename(a, renamed))
	ir2, err := FileUID(renamed, IDInode)
	require.NoError(t, err)
	assert.Equal(t, ia, ir2, "inode uid survives a rename")

	_, err = FileUID(b, "bogus")
	assert.Error(t, err)
	_, err = FileUID(filepath.Join(dir, "missing"), IDContent)
	assert.Error(t, err)
}

func TestUIDResolver(t *testing.T) {
	dir := t.TempDir()
	var items []ir.Item
	for _, n := range []string{"a", "b", "c", "d"} {
		p := filepath.Join(dir, n+".jpg")
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
		items = append(items, ir.Item{ID: p})
	}
	missing := ir.Item{ID: filepath.Join(dir, "missing.jpg")}
	items = append(items, missing)

	r := &UIDResolver{Method: IDContent, Workers: 2, Logger: quietLogger()}
	require.NoError(t, r.Resolve(context.Background(), items))

	for _, it := range items[:4] {
		want, err := FileUID(it.ID, IDContent)
		require.NoError(t, err)
		assert.Equal(t, want, r.UID(it))
	}
	assert.Equal(t, ir.ItemUID(missing), r.UID(missing))
	assert.Equal(t, ir.ItemUID(ir.Item{ID: "/never/resolved"}), r.UID(ir.Item{ID: "/never/resolved"}))
}

func TestUIDResolver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &UIDResolver{Method: IDPath}
	err := r.Resolve(ctx, []ir.Item{{ID: "/a"}})
	assert.ErrorIs(t, err, context.Canceled)
}

// wavFile returns a WAVE file of dataBytes of silence.
func wavFile(t *testing.T, sampleRate, channels, bits uint32, dataBytes uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, le, uint32(4+8+16+8+dataBytes)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	require.NoError(t, binary.Write(&buf, le, uint32(16)))
	require.NoError(t, binary.Write(&buf, le, uint16(1)))
	require.NoError(t, binary.Write(&buf, le, uint16(channels)))
	require.NoError(t, binary.Write(&buf, le, sampleRate))
	require.NoError(t, binary.Write(&buf, le, sampleRate*channels*bits/8))
	require.NoError(t, binary.Write(&buf, le, uint16(channels*bits/8)))
	require.NoError(t, binary.Write(&buf, le, uint16(bits)))
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, le, dataBytes))
	buf.Write(make([]byte, dataBytes))
	return buf.Bytes()
}

func TestWavDuration(t *testing.T) {
	// 2 seconds of 44.1kHz stereo 16-bit.
	d, err := wavDuration(bytes.NewReader(wavFile(t, 44100, 2, 16, 2*44100*4)))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-9)

	d, err = wavDuration(bytes.NewReader(wavFile(t, 8000, 1, 8, 4000)))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-9)

	_, err = wavDuration(bytes.NewReader([]byte("RIFF\x04\x00\x00\x00AVI ")))
	assert.Error(t, err)
}

func TestFileDurations(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "song.wav")
	require.NoError(t, os.WriteFile(p, wavFile(t, 48000, 2, 16, 48000*4*3), 0o644))

	d, err := FileDurations.Duration(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d, 1e-9)

	_, err = FileDurations.Duration(context.Background(), filepath.Join(dir, "song.m4a"))
	assert.ErrorIs(t, err, ErrUnsupportedAudio)

	// MP3 is decoded; an empty file is not a usable soundtrack.
	empty := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = FileDurations.Duration(context.Background(), empty)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedAudio)

	d, err = Fixed(184.2).Duration(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 184.2, d)
}
