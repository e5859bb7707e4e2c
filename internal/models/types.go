package models

type FetchItem struct {
	RemotePath string `json:"remote_path"`
	LocalPath  string `json:"local_path"`
	Size       int64  `json:"size"`
}

type FetchResult struct {
	Bucket         string      `json:"bucket"`
	Prefix         string      `json:"prefix"`
	Destination    string      `json:"destination"`
	Items          []FetchItem `json:"items"`
	TotalFiles     int         `json:"total_files"`
	TotalSizeBytes int64       `json:"total_size_bytes"`
	TotalSizeHuman string      `json:"total_size_human"`
	Fallback       bool        `json:"fallback"`
	OperationTime  string      `json:"operation_time"`
	FetchDuration  string      `json:"fetch_duration"`
}

type CheckResult struct {
	Bucket        string `json:"bucket"`
	Prefix        string `json:"prefix"`
	ListAllowed   bool   `json:"list_allowed"`
	ObjectAccess  bool   `json:"object_access"`
	ProbedKey     string `json:"probed_key"`
	OperationTime string `json:"operation_time"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}
