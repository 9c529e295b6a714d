package errors

// Service codes (AA)
const (
	// ServiceCommon is for common/base errors shared by all components.
	ServiceCommon = 0

	// ServiceInfraDB is for database infrastructure (MongoDB).
	ServiceInfraDB = 10

	// ServiceInfraCache is for cache infrastructure (Redis).
	ServiceInfraCache = 11

	// ServiceInfraVector is for vector store infrastructure.
	ServiceInfraVector = 12

	// ServiceRAG is for the law question answering pipeline.
	ServiceRAG = 20

	// ServiceFeedback is for feedback and conversation history.
	ServiceFeedback = 21

	// ServiceThirdPartyLLM is for language model backends.
	ServiceThirdPartyLLM = 90
)

// Category codes (BB)
const (
	CategorySuccess    = 0
	CategoryRequest    = 1
	CategoryAuth       = 2
	CategoryPermission = 3
	CategoryResource   = 4
	CategoryConflict   = 5
	CategoryRateLimit  = 6
	CategoryInternal   = 7
	CategoryDatabase   = 8
	CategoryCache      = 9
	CategoryNetwork    = 10
	CategoryTimeout    = 11
	CategoryConfig     = 12
)

// MakeCode creates an error code from service, category, and sequence.
// Format: AABBCCC where AA=service, BB=category, CCC=sequence
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode parses an error code into service, category, and sequence.
func ParseCode(code int) (service, category, sequence int) {
	service = code / 100000
	category = (code % 100000) / 1000
	sequence = code % 1000
	return
}

// GetCategory returns the category code from an error code.
func GetCategory(code int) int {
	return (code % 100000) / 1000
}

// IsClientError checks if the error code indicates a client error (4xx).
func IsClientError(code int) bool {
	category := GetCategory(code)
	return category >= CategoryRequest && category <= CategoryRateLimit
}

// IsServerError checks if the error code indicates a server error (5xx).
func IsServerError(code int) bool {
	category := GetCategory(code)
	return category >= CategoryInternal && category <= CategoryConfig
}
