// Package hashing computes the model fingerprints reported for every file
// (SHA256, AutoV1, AutoV2, AutoV3, CRC32, Blake3) and repairs stale
// sshs_model_hash values recorded inside safetensors headers.
package hashing
