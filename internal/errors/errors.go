package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Store errors

type ErrAccountNotFound struct {
	Name string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account not found: %s", e.Name)
}

type ErrSessionExists struct {
	ID string
}

func (e *ErrSessionExists) Error() string {
	return fmt.Sprintf("oauth session already exists: %s", e.ID)
}

// OAuth errors

// ErrOAuth is an authorization or exchange failure. Code and Description carry
// the provider-reported error when the response body was parseable; otherwise
// Status holds the raw HTTP status text.
type ErrOAuth struct {
	Code        string
	Description string
	Status      string
	Err         error
}

func (e *ErrOAuth) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("oauth error %s: %s", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("oauth error %s", e.Code)
	case e.Status != "":
		return fmt.Sprintf("oauth exchange failed: %s", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("oauth exchange failed: %v", e.Err)
	default:
		return "oauth exchange failed"
	}
}

func (e *ErrOAuth) Unwrap() error {
	return e.Err
}

// Proxy errors

// ErrProvider is the terminal proxy failure raised after every candidate
// account and the unauthenticated fallback have failed.
type ErrProvider struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ErrProvider) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("provider error (%d)", e.StatusCode)
}

func (e *ErrProvider) Unwrap() error {
	return e.Err
}

type ErrNoSuitableAccounts struct {
	Reason string
}

func (e *ErrNoSuitableAccounts) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no suitable accounts found: %s", e.Reason)
	}
	return "no suitable accounts found"
}
