package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// The error kinds below form a closed taxonomy: the HTTP layer maps each
// kind to a status code with errors.As, never by matching message text.

// ValidationError is malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError is an unknown entity, or one outside the caller's scope.
// Ownership misses deliberately look identical to absent rows.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// BusinessRuleError is a request that is well-formed but violates a
// workflow rule, such as cancelling a shipped order.
type BusinessRuleError struct {
	Reason string
}

func (e BusinessRuleError) Error() string { return e.Reason }

// InsufficientStockError carries the product, size and availability so
// callers can act on fields rather than parse the message.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Size        string
	Requested   int
	Available   int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (size %s): requested %d, available %d",
		e.ProductName, e.Size, e.Requested, e.Available)
}

// ConflictError is a stock reservation that passed validation but lost to
// a concurrent order at commit time. The transaction is rolled back.
type ConflictError struct {
	ProductName string
	Size        string
	Requested   int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("stock for %s (size %s) was taken by a concurrent order: requested %d",
		e.ProductName, e.Size, e.Requested)
}
