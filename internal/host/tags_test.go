package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/beatspine/internal/host"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		in   string
		want host.Tag
		ok   bool
	}{
		{in: host.ItemTag("3f2a"), want: host.Tag{Kind: host.TagItem, UID: "3f2a"}, ok: true},
		{in: host.BeatTag(0), want: host.Tag{Kind: host.TagBeat, Beat: 0}, ok: true},
		{in: host.BeatTag(42), want: host.Tag{Kind: host.TagBeat, Beat: 42}, ok: true},
		{in: ""},
		{in: "3f2a"},
		{in: "beatspine:"},
		{in: "beatspine:beat"},
		{in: "beatspine:beat:"},
		{in: "beatspine:beat:-1"},
		{in: "beatspine:beat:07"},
		{in: "beatspine:beat:x"},
		{in: "beatspine:a b"},
		{in: "beatspine:a:b"},
		{in: "other:3f2a"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := host.ParseTag(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagFormat(t *testing.T) {
	assert.Equal(t, "beatspine:abc", host.ItemTag("abc"))
	assert.Equal(t, "beatspine:beat:7", host.BeatTag(7))
}
