package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *SiteforgeError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *SiteforgeError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Pipeline errors

func RevisionFailed(cause error) *SiteforgeError {
	return Wrap(cause, CategoryRevision, SeverityFatal, "revisioning failed")
}

func WorkspaceError(operation string, cause error) *SiteforgeError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Deploy errors

func DeployFailed(environment string, cause error) *SiteforgeError {
	return Wrap(cause, CategoryDeploy, SeverityFatal, "deploy failed").
		WithContext("environment", environment)
}

func PublishNetworkError(target string, cause error) *SiteforgeError {
	return WrapRetryable(cause, CategoryNetwork, SeverityError, "publish transport error").
		WithContext("target", target)
}
