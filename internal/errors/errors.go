package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess            Code = 0
	CodeInternal           Code = 1
	CodeUsage              Code = 2
	CodeAuth               Code = 10
	CodeRateLimited        Code = 11
	CodeUnavailable        Code = 12
	CodeUnsupported        Code = 13
	CodeBlocked            Code = 16
	CodeConfig             Code = 20
	CodeMissingSecret      Code = 21
	CodeMissingAPIKey      Code = 22
	CodeUnsupportedChain   Code = 23
	CodeVerifyPrecondition Code = 24
	CodeTaskFailed         Code = 25
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether any coded error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		cErr, ok := As(err)
		if !ok {
			return false
		}
		if cErr.Code == code {
			return true
		}
		err = cErr.Cause
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// MissingAPIKeyError lists every chain and variable that failed the startup key check.
type MissingAPIKeyError struct {
	Chains    []string
	Variables []string
}

func (e *MissingAPIKeyError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Chains) > 0 {
		parts = append(parts, "explorer API key missing for "+strings.Join(e.Chains, ", "))
	}
	if len(e.Variables) > 0 {
		parts = append(parts, "unset variables: "+strings.Join(e.Variables, ", "))
	}
	if len(parts) == 0 {
		return "api keys missing"
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether no violation was recorded.
func (e *MissingAPIKeyError) Empty() bool {
	return e == nil || (len(e.Chains) == 0 && len(e.Variables) == 0)
}

// Add records a violation, ignoring duplicates.
func (e *MissingAPIKeyError) Add(chain, variable string) {
	if chain != "" && !contains(e.Chains, chain) {
		e.Chains = append(e.Chains, chain)
	}
	if variable != "" && !contains(e.Variables, variable) {
		e.Variables = append(e.Variables, variable)
	}
}

// Merge folds other into e and keeps both lists sorted.
func (e *MissingAPIKeyError) Merge(other *MissingAPIKeyError) {
	if other == nil {
		return
	}
	for _, c := range other.Chains {
		e.Add(c, "")
	}
	for _, v := range other.Variables {
		e.Add("", v)
	}
	sort.Strings(e.Chains)
	sort.Strings(e.Variables)
}

// MissingSecret builds the fatal error for an absent deployer credential.
func MissingSecret(names ...string) *Error {
	return New(CodeMissingSecret, fmt.Sprintf("missing deployer secret: set %s", strings.Join(names, " or ")))
}

// MissingAPIKeys wraps the aggregated key report.
func MissingAPIKeys(report *MissingAPIKeyError) *Error {
	return Wrap(CodeMissingAPIKey, "configuration incomplete", report)
}

// UnsupportedChain rejects a chain id outside the known enumeration.
func UnsupportedChain(chainID int64) *Error {
	return New(CodeUnsupportedChain, fmt.Sprintf("chain id %d is not supported", chainID))
}

// VerifyPrecondition aborts a verification before any remote call.
func VerifyPrecondition(message string) *Error {
	return New(CodeVerifyPrecondition, message)
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
