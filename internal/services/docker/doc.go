// Package docker runs scanner and converter commands inside the scanner
// container image with the model file bind-mounted at a fixed path.
package docker
