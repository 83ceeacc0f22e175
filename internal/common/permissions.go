package common

// File permission constants for files the tool writes
const (
	// FilePermissionSecure is used for sensitive files (config, env files)
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for report outputs and metrics textfiles
	FilePermissionNormal = 0644

	// DirPermissionNormal is used for output directories
	DirPermissionNormal = 0755
)
