package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// DurationSource reports the length of a media file in seconds.
type DurationSource interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// DurationFunc adapts a function to DurationSource.
type DurationFunc func(ctx context.Context, path string) (float64, error)

// Duration implements DurationSource.
func (f DurationFunc) Duration(ctx context.Context, path string) (float64, error) {
	return f(ctx, path)
}

// Fixed returns a DurationSource that always reports seconds.
func Fixed(seconds float64) DurationSource {
	return DurationFunc(func(context.Context, string) (float64, error) {
		return seconds, nil
	})
}

// ErrUnsupportedAudio is returned for audio formats that cannot be decoded.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// FileDurations reads durations from WAV and MP3 files. Other formats need an
// explicit duration.
var FileDurations DurationSource = DurationFunc(fileDuration)

func fileDuration(_ context.Context, path string) (float64, error) {
	var read func(io.ReadSeeker) (float64, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		read = wavDuration
	case ".mp3":
		read = mp3Duration
	default:
		return 0, fmt.Errorf("%s: %w; set the audio duration explicitly", path, ErrUnsupportedAudio)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("read audio: %w", err)
	}
	defer f.Close()

	d, err := read(f)
	if err != nil {
		return 0, fmt.Errorf("read audio %s: %w", path, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("read audio %s: no audio data", path)
	}
	return d, nil
}

// wavDuration divides the size of the PCM data chunk by the byte rate.
func wavDuration(r io.ReadSeeker) (float64, error) {
	d := wav.NewDecoder(r)
	if err := d.FwdToPCM(); err != nil {
		return 0, err
	}
	if d.AvgBytesPerSec == 0 || d.PCMLen() == 0 {
		return 0, errors.New("not a RIFF/WAVE file")
	}
	return float64(d.PCMLen()) / float64(d.AvgBytesPerSec), nil
}

// mp3Duration decodes frame headers; the decoder reports the length of the
// 16-bit stereo stream it would produce.
func mp3Duration(r io.ReadSeeker) (float64, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return 0, err
	}
	if d.Length() < 0 || d.SampleRate() <= 0 {
		return 0, errors.New("mp3 length unknown")
	}
	const bytesPerFrame = 4
	return float64(d.Length()) / bytesPerFrame / float64(d.SampleRate()), nil
}
