package models

// FileInfo describes a file in a directory listing or a file_info call.
type FileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"` // RFC 3339
	IsDir    bool   `json:"is_dir"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
	MimeType string `json:"mime_type,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// DirectoryListing is the result of list_directory.
type DirectoryListing struct {
	Directory  string     `json:"directory"`
	Entries    []FileInfo `json:"entries"`
	TotalCount int        `json:"total_count"`
}
