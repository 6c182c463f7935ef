package rpc

import "encoding/json"

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Package string `json:"package"`
	// Output overrides the daemon's cache root.
	Output string `json:"output,omitempty"`
}

// AnalyzeResponse is the response body for POST /analyze.
type AnalyzeResponse struct {
	Crate     string   `json:"crate"`
	Modules   []string `json:"modules"`
	Structs   []string `json:"structs"`
	Enums     []string `json:"enums"`
	Functions []string `json:"functions"`
	Written   int      `json:"written"`
}

// LoadRequest is the request body for POST /load.
type LoadRequest struct {
	Category string `json:"category"`
	// Mode is one of "one", "children", "descendants" or "prefix".
	Mode        string `json:"mode"`
	Path        string `json:"path,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	IncludeSelf bool   `json:"include_self,omitempty"`
	Output      string `json:"output,omitempty"`
}

// LoadResponse is the response body for POST /load. Items holds the stored
// records verbatim.
type LoadResponse struct {
	Items []json.RawMessage `json:"items"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	CacheDir string        `json:"cache_dir"`
	Crates   []CrateStatus `json:"crates"`
}

type CrateStatus struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Summary   string `json:"summary,omitempty"`
	Modules   int    `json:"modules"`
	Structs   int    `json:"structs"`
	Enums     int    `json:"enums"`
	Functions int    `json:"functions"`
}

// ErrorResponse is returned with any non-200 status.
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind classifies analysis failures: "config", "parse", "corrupt" or "".
	Kind string `json:"kind,omitempty"`
}
