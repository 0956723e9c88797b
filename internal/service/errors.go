package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Error kinds exposed to clients as the errorKind field.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInsufficientStock = "insufficient_stock"
	KindDuplicateItem     = "duplicate_item"
	KindPersistence       = "persistence"
	KindUnauthorized      = "unauthorized"
)

// ValidationError is a caller mistake: a missing or invalid field.
type ValidationError struct {
	Msg    string
	Fields map[string]string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Kind() string  { return KindValidation }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Msg: msg, Fields: map[string]string{field: msg}}
}

// NotFoundError reports an unknown identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Resource, e.ID) }
func (e *NotFoundError) Kind() string  { return KindNotFound }

// InsufficientStockError aborts a sale whose line asks for more than is on hand.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	ItemName  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.ItemName, e.Requested, e.Available)
}
func (e *InsufficientStockError) Kind() string { return KindInsufficientStock }

// DuplicateItemError reports a case-insensitive name clash.
type DuplicateItemError struct {
	Name string
}

func (e *DuplicateItemError) Error() string { return fmt.Sprintf("item %q already exists", e.Name) }
func (e *DuplicateItemError) Kind() string  { return KindDuplicateItem }

// PersistenceError wraps an underlying storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
func (e *PersistenceError) Kind() string  { return KindPersistence }

// UnauthorizedError rejects bad operator credentials.
type UnauthorizedError struct{}

func (e *UnauthorizedError) Error() string { return "invalid credentials" }
func (e *UnauthorizedError) Kind() string  { return KindUnauthorized }

// KindOf returns the errorKind of a domain error, or "" for anything else.
func KindOf(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// storageErr classifies a repository error. Domain errors pass through,
// unique violations become DuplicateItemError, the rest PersistenceError.
func storageErr(op string, err error, name string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateItemError{Name: name}
	}
	return &PersistenceError{Op: op, Err: err}
}
