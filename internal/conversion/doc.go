// Package conversion produces the alternate serialization of a model
// (pickle checkpoint to safetensors and back) inside the scanner container
// and publishes it next to the original object.
package conversion
