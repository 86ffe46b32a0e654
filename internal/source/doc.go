// Package source loads the inputs of a build: timestamped photos from a
// YAML manifest, soundtrack durations, and stable per-file UIDs.
//
// A manifest lists photos relative to its own directory:
//
//	audio:
//	  path: song.wav
//	photos:
//	  - path: 2024/IMG_0001.jpg
//	    taken: 2024-01-01T10:00:00Z
//	  - path: 2024/IMG_0002.jpg
//	    taken: "2024:01:02 09:30:00"
//	    comment: "beat: 12"
//
// Entries that cannot be read are skipped with a warning; a manifest that
// yields no photos at all is an error.
package source
