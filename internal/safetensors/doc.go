// Package safetensors reads and rewrites the JSON header of safetensors
// files. The layout is an 8-byte little-endian header length, the header
// JSON, then raw tensor data.
package safetensors
