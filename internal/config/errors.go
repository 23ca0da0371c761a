package config

const (
	// Database errors
	ErrInitializeDatabaseFmt = "Failed to initialize database: %v"

	// Request validation errors
	ErrPostIDRequired = "postId parameter required"
	ErrPostIDInvalid  = "postId must be a positive integer"
	ErrLimitInvalid   = "limit must be an integer between 1 and 10"

	// Draft errors
	ErrDraftNotFound = "Draft not found"

	// Maintenance
	ErrMaintenanceBody = "Site is under maintenance"

	// Auth errors
	ErrInternalServerError = "Internal server error"
)
