// Package cleanup soft-deletes uploaded model files the site no longer
// references.
//
// The job indexes every ModelFile URL from the site's PostgreSQL database,
// then walks the canonical bucket. Objects younger than the cutoff, objects
// whose key is not a "<userId>/model/<file>" path, and objects that are still
// referenced are kept; everything else is moved under deleted/ with an ETag
// precondition so a concurrent re-upload is never lost.
package cleanup
