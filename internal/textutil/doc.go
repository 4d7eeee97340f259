// Package textutil normalizes untrusted text, such as download file names,
// before it touches the filesystem.
package textutil
