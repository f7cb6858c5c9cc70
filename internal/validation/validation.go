// Package validation checks and sanitizes directory API input.
package validation

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). The API is read
// only, so bodies are never expected.
const MaxRequestSize = 64 << 10

// MaxStringLength caps free-text query parameters, in runes.
const MaxStringLength = 100

// MaxListItems caps list-valued query parameters.
const MaxListItems = 10

// MaxPageSize caps the search page size.
const MaxPageSize = 100

var (
	// agentIDRegex matches a decimal uint256 token id
	agentIDRegex = regexp.MustCompile(`^[0-9]{1,78}$`)
	// injectionChars are stripped from every string parameter
	injectionChars = "<>\"'%;()&+\x00"
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAgentID checks that s is a positive decimal token id
func IsValidAgentID(s string) bool {
	return agentIDRegex.MatchString(s) && strings.Trim(s, "0") != ""
}

// SanitizeString strips injection characters, trims whitespace and caps
// the result at maxLen runes.
func SanitizeString(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(injectionChars, r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimSpace(string([]rune(s)[:maxLen]))
	}
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if utf8.RuneCountInString(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// AgentIDParamMiddleware validates the :id URL parameter on routes that use it.
func AgentIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidAgentID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_agent_id",
				"message": "agent id must be a positive decimal token id",
			})
			return
		}
		c.Next()
	}
}
