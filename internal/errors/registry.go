package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// Error codes used across chatsync.
const (
	CodeChatNotFound    = "E101"
	CodeFetchFailed     = "E102"
	CodePopulateFailed  = "E103"
	CodeHydrationAbort  = "E104"
	CodeStorageClosed   = "E201"
	CodeStorageBackend  = "E202"
	CodeBadFrame        = "E301"
	CodeSessionLimit    = "E302"
	CodeBadRequest      = "E303"
	CodeNoUploads       = "E304"
	CodeInvalidConfig   = "E401"
	CodeConfigNotFound  = "E402"
	CodeUnknownStorage  = "E403"
	CodeMissingArgument = "E501"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Hydration Errors (E101-E199)
	// ============================================

	CodeChatNotFound: {
		Category: CategoryHydration,
		Message:  "Chat not found",
		Detail:   "The chat named in the address has no history metadata. The address parameter was cleared.",
	},
	CodeFetchFailed: {
		Category: CategoryHydration,
		Message:  "Failed to load chat",
		Detail:   "Reading the chat history or its metadata from storage failed.",
	},
	CodePopulateFailed: {
		Category: CategoryHydration,
		Message:  "Failed to restore chat",
		Detail:   "One or more parts of the chat could not be applied. The session may be partially restored.",
	},
	CodeHydrationAbort: {
		Category: CategoryHydration,
		Message:  "Chat load cancelled",
		Detail:   "The session ended before the chat finished loading.",
	},

	// ============================================
	// Storage Errors (E201-E299)
	// ============================================

	CodeStorageClosed: {
		Category: CategoryStorage,
		Message:  "Storage is closed",
		Detail:   "An operation was attempted after the storage engine was closed.",
	},
	CodeStorageBackend: {
		Category: CategoryStorage,
		Message:  "Storage backend error",
		Detail:   "The storage backend returned an error.",
	},

	// ============================================
	// Protocol Errors (E301-E399)
	// ============================================

	CodeBadFrame: {
		Category: CategoryProtocol,
		Message:  "Malformed client frame",
		Detail:   "A websocket frame from the client could not be decoded.",
	},
	CodeSessionLimit: {
		Category: CategoryProtocol,
		Message:  "Too many sessions",
		Detail:   "The server reached its configured session limit.",
	},
	CodeBadRequest: {
		Category: CategoryProtocol,
		Message:  "Invalid request",
		Detail:   "The request body could not be decoded or failed validation.",
	},
	CodeNoUploads: {
		Category: CategoryProtocol,
		Message:  "File uploads are not configured",
		Detail:   "Set files.bucket in the configuration to accept context file uploads.",
	},

	// ============================================
	// Config Errors (E401-E499)
	// ============================================

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The configuration file contains an invalid value.",
	},
	CodeConfigNotFound: {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No chatsync.json or chatsync.yaml was found in the working directory or its parents.",
	},
	CodeUnknownStorage: {
		Category: CategoryConfig,
		Message:  "Unknown storage driver",
		Detail:   "storage.driver must be one of memory, sqlite, postgres, mysql.",
	},

	// ============================================
	// CLI Errors (E501-E599)
	// ============================================

	CodeMissingArgument: {
		Category: CategoryCLI,
		Message:  "Missing argument",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
