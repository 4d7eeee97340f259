package result

import (
	"encoding/json"
)

// Hash algorithm names used as keys in ScanResult.Hashes.
const (
	HashSHA256 = "SHA256"
	HashAutoV1 = "AutoV1"
	HashAutoV2 = "AutoV2"
	HashAutoV3 = "AutoV3"
	HashBlake3 = "Blake3"
	HashCRC32  = "CRC32"
)

// FixSSHSHash marks a rewritten sshs_model_hash inside a safetensors header.
const FixSSHSHash = "sshs_hash"

// ScanResult accumulates everything learned about one model file. It is owned
// by a single pipeline run and never shared between jobs.
type ScanResult struct {
	URL                        string                `json:"url"`
	FileExists                 int                   `json:"fileExists"`
	PicklescanExitCode         int                   `json:"picklescanExitCode"`
	PicklescanOutput           string                `json:"picklescanOutput,omitempty"`
	PicklescanGlobalImports    StringSet             `json:"picklescanGlobalImports,omitempty"`
	PicklescanDangerousImports StringSet             `json:"picklescanDangerousImports,omitempty"`
	Conversions                map[string]Conversion `json:"conversions,omitempty"`
	Hashes                     map[string]string     `json:"hashes,omitempty"`
	Metadata                   json.RawMessage       `json:"metadata,omitempty"`
	ClamscanExitCode           int                   `json:"clamscanExitCode"`
	ClamscanOutput             string                `json:"clamscanOutput,omitempty"`
	Fixed                      StringSet             `json:"fixed,omitempty"`
}

// Conversion records one attempted format conversion. A nil URL means the
// conversion failed or was skipped; ConversionOutput explains why.
type Conversion struct {
	URL              *string           `json:"url,omitempty"`
	Hashes           map[string]string `json:"hashes,omitempty"`
	ConversionOutput string            `json:"conversionOutput"`
	SizeKB           *float64          `json:"sizeKB,omitempty"`
}

// New returns a result for sourceURL with FileExists unset.
func New(sourceURL string) *ScanResult {
	return &ScanResult{URL: sourceURL}
}

// Succeeded reports whether the conversion produced an uploaded artifact.
func (c Conversion) Succeeded() bool {
	return c.URL != nil
}

// SetConversion records the outcome for target, allocating the map on first use.
func (r *ScanResult) SetConversion(target string, c Conversion) {
	if r.Conversions == nil {
		r.Conversions = make(map[string]Conversion)
	}
	r.Conversions[target] = c
}

// MarkFixed records that repair name was applied to the file.
func (r *ScanResult) MarkFixed(name string) {
	if r.Fixed == nil {
		r.Fixed = NewStringSet()
	}
	r.Fixed.Add(name)
}

// JSON renders the result as the callback body.
func (r *ScanResult) JSON() ([]byte, error) {
	return json.Marshal(r)
}
