// Package scanning runs the antivirus and pickle scanners inside the scanner
// container and records their verdicts on the scan result.
package scanning
