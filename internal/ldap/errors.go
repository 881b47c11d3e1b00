package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrEntryNotFound is returned by mutations addressed to an entry that is not in the directory.
var ErrEntryNotFound = errors.New("entry not found")

// ErrMissingField is matched by every MissingFieldError.
var ErrMissingField = errors.New("required field missing")

// MissingFieldError reports the first required field a builder found empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return e.Field + " is required"
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// LDAPError describes an operation the directory rejected.
type LDAPError struct {
	Operation string        // The operation that failed
	Category  ErrorCategory // Error category
	LDAPCode  uint16        // LDAP result code
	Message   string        // Human-readable message
	ServerMsg string        // Server-provided message
	DN        string        // DN involved in the operation (if applicable)
	Cause     error         // Underlying error
}

func (e *LDAPError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// NewLDAPError creates a new LDAP error.
func NewLDAPError(operation string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	ldapErr := &LDAPError{
		Operation: operation,
		Cause:     err,
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		ldapErr.LDAPCode = resultErr.ResultCode
		if resultErr.Err != nil {
			ldapErr.ServerMsg = resultErr.Err.Error()
		}
		ldapErr.Category = categorizeError(resultErr.ResultCode)
		ldapErr.Message = resultMessage(resultErr.ResultCode)
	} else {
		ldapErr.Category = categorizeGenericError(err)
		ldapErr.Message = err.Error()
	}

	return ldapErr
}

// resultCategories maps the result codes this service distinguishes. Any
// other code is ErrorCategoryUnknown.
var resultCategories = map[uint16]ErrorCategory{
	ldap.LDAPResultInvalidCredentials:          ErrorCategoryAuthentication,
	ldap.LDAPResultInappropriateAuthentication: ErrorCategoryAuthentication,
	ldap.LDAPResultStrongAuthRequired:          ErrorCategoryAuthentication,

	ldap.LDAPResultInsufficientAccessRights: ErrorCategoryPermission,
	ldap.LDAPResultUnwillingToPerform:       ErrorCategoryPermission,

	ldap.LDAPResultNoSuchObject:           ErrorCategoryNotFound,
	ldap.LDAPResultNoSuchAttribute:        ErrorCategoryNotFound,
	ldap.LDAPResultUndefinedAttributeType: ErrorCategoryNotFound,

	ldap.LDAPResultEntryAlreadyExists:     ErrorCategoryConflict,
	ldap.LDAPResultAttributeOrValueExists: ErrorCategoryConflict,
	ldap.LDAPResultObjectClassViolation:   ErrorCategoryConflict,
	ldap.LDAPResultNotAllowedOnNonLeaf:    ErrorCategoryConflict,

	ldap.LDAPResultInvalidAttributeSyntax: ErrorCategoryValidation,
	ldap.LDAPResultConstraintViolation:    ErrorCategoryValidation,
	ldap.LDAPResultInvalidDNSyntax:        ErrorCategoryValidation,
	ldap.LDAPResultNamingViolation:        ErrorCategoryValidation,
	ldap.LDAPResultFilterError:            ErrorCategoryValidation,

	ldap.LDAPResultServerDown:         ErrorCategoryServer,
	ldap.LDAPResultUnavailable:        ErrorCategoryServer,
	ldap.LDAPResultBusy:               ErrorCategoryServer,
	ldap.LDAPResultTimeLimitExceeded:  ErrorCategoryServer,
	ldap.LDAPResultAdminLimitExceeded: ErrorCategoryServer,

	ldap.LDAPResultConnectError:  ErrorCategoryConnection,
	ldap.LDAPResultProtocolError: ErrorCategoryConnection,
	ldap.ErrorNetwork:            ErrorCategoryConnection,
}

func categorizeError(code uint16) ErrorCategory {
	if category, ok := resultCategories[code]; ok {
		return category
	}
	return ErrorCategoryUnknown
}

// categorizeGenericError categorizes non-LDAP errors by message.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	for _, pattern := range []string{"connection", "network", "timeout", "broken pipe", "eof"} {
		if strings.Contains(errStr, pattern) {
			return ErrorCategoryConnection
		}
	}

	if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "bind") {
		return ErrorCategoryAuthentication
	}

	return ErrorCategoryUnknown
}

// resultMessage names a result code using go-ldap's table.
func resultMessage(code uint16) string {
	if msg, ok := ldap.LDAPResultCodeMap[code]; ok {
		return msg
	}
	return fmt.Sprintf("LDAP result code %d", code)
}

// WrapError wraps an error with operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		if ldapErr.Operation == "" {
			ldapErr.Operation = operation
		}
		return err
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}

	return NewLDAPError(operation, err)
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return ErrorCategoryConnection
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return categorizeError(resultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsNotFoundError checks if an error indicates a "not found" condition.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEntryNotFound) || GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsConflictError checks if an error indicates a conflict (already exists).
func IsConflictError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryConflict
}

// IsConnectionError checks if an error means the directory could not be reached.
func IsConnectionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryConnection
}

// IsPermissionError checks if an error indicates a permission problem.
func IsPermissionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryPermission
}
