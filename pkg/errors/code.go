package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Authentication & session errors
// 12000-12999: Course / homework / problem data errors
// 13000-13999: Submission & grading errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError ErrorCode = 10001
	InvalidParams ErrorCode = 10002
	NotFound      ErrorCode = 10003
	Timeout       ErrorCode = 10008

	// Transport errors (10100-10199)
	NetworkError       ErrorCode = 10100
	UnexpectedResponse ErrorCode = 10101
	DataError          ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Authentication & Session Errors (11000-11999) ==========

	// Handshake (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	TokenExtractionFailed ErrorCode = 11001
	LoginRejected         ErrorCode = 11002
	RedirectLoopExceeded  ErrorCode = 11003
	SessionCookieMissing  ErrorCode = 11004
	CsrfMintFailed        ErrorCode = 11005

	// Session (11100-11199)
	CsrfTokenMissing ErrorCode = 11100
	SessionExpired   ErrorCode = 11101
	SessionInvalid   ErrorCode = 11102

	// ========== Data Errors (12000-12999) ==========

	CourseNotFound      ErrorCode = 12000
	HomeworkNotFound    ErrorCode = 12001
	ProblemNotFound     ErrorCode = 12002
	ProblemExportFailed ErrorCode = 12003

	// ========== Submission & Grading Errors (13000-13999) ==========

	SourceFileNotFound  ErrorCode = 13000
	UploadFailed        ErrorCode = 13001
	GradingQueryFailed  ErrorCode = 13002
	GradingTimeout      ErrorCode = 13003
	SubmissionUnchanged ErrorCode = 13004
)

// Category groups error codes by how callers are expected to react.
type Category string

const (
	CategoryNone     Category = ""
	CategoryNetwork  Category = "NetworkError"
	CategoryProtocol Category = "ProtocolError"
	CategoryAuth     Category = "AuthError"
	CategoryData     Category = "DataError"
	CategoryTimeout  Category = "Timeout"
	CategoryInternal Category = "InternalError"
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:       "Success",
	InternalError: "Internal error",
	InvalidParams: "Invalid parameters",
	NotFound:      "Resource not found",
	Timeout:       "Operation timed out",

	// Transport
	NetworkError:       "Network request failed",
	UnexpectedResponse: "Unexpected response from server",
	DataError:          "Malformed response body",

	// Cache
	CacheError: "Session cache operation failed",
	CacheMiss:  "Session cache miss",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Handshake
	InvalidCredentials:    "Invalid username or password",
	TokenExtractionFailed: "Login form token not found",
	LoginRejected:         "Login request rejected",
	RedirectLoopExceeded:  "Too many redirects during login",
	SessionCookieMissing:  "Session cookie not issued",
	CsrfMintFailed:        "CSRF token not issued",

	// Session
	CsrfTokenMissing: "No CSRF token, login required",
	SessionExpired:   "Session has expired",
	SessionInvalid:   "Session rejected by server",

	// Data
	CourseNotFound:      "Course not found",
	HomeworkNotFound:    "Homework not found",
	ProblemNotFound:     "Problem not found",
	ProblemExportFailed: "Failed to export problem",

	// Submission
	SourceFileNotFound:  "Source file not found",
	UploadFailed:        "Submission upload failed",
	GradingQueryFailed:  "Failed to query grading result",
	GradingTimeout:      "Grading did not finish in time, check the platform later",
	SubmissionUnchanged: "Source is identical to the last submission",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Category returns the taxonomy bucket of the error code.
func (c ErrorCode) Category() Category {
	switch {
	case c == Success:
		return CategoryNone
	case c == NetworkError:
		return CategoryNetwork
	case c == UnexpectedResponse, c == LoginRejected, c == RedirectLoopExceeded, c == UploadFailed:
		return CategoryProtocol
	case c >= 11000 && c < 12000:
		return CategoryAuth
	case c == DataError, c == GradingQueryFailed, c == CacheMiss:
		return CategoryData
	case c >= 12000 && c < 13000:
		return CategoryData
	case c == Timeout, c == GradingTimeout:
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}

// Fatal reports whether an error of this code should abort the current run.
func (c ErrorCode) Fatal() bool {
	return c.Category() == CategoryAuth
}
