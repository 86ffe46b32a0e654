// Package compiler compiles CUE project configuration into a Config.
//
// A configuration file is unified with the embedded #Project schema, which
// supplies defaults and rejects unknown fields, out-of-range numbers and
// unknown enumeration values. Errors carry the CUE source position.
//
// Example:
//
//	name:     "Summer 2024"
//	tempo:    128
//	manifest: "photos.yaml"
//	timeGap:  "1-day"
//	audio: path: "song.wav"
package compiler
