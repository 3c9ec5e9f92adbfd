package ca

import (
	"context"

	"github.com/Araneidae/epics-ca/dbr"
)

// The Get functions read a process variable by name through a Client. Each
// one is the Read function of the same shape run on a pooled channel.

// Get is ReadValue on a pooled channel for name.
func Get[T dbr.Element](ctx context.Context, c *Client, name string) (T, error) {
	return withChannel(ctx, c, name, ReadValue[T])
}

// GetVector is ReadVector on a pooled channel for name.
func GetVector[T dbr.Element](ctx context.Context, c *Client, name string) ([]T, error) {
	return withChannel(ctx, c, name, ReadVector[T])
}

// GetTimed is ReadTimed on a pooled channel for name.
func GetTimed[T dbr.Element](ctx context.Context, c *Client, name string) (Timed[T], error) {
	return withChannel(ctx, c, name, ReadTimed[T])
}

// GetTimedVector is ReadTimedVector on a pooled channel for name.
func GetTimedVector[T dbr.Element](ctx context.Context, c *Client, name string) (Timed[[]T], error) {
	return withChannel(ctx, c, name, ReadTimedVector[T])
}

// GetCtrl is ReadCtrl on a pooled channel for name.
func GetCtrl[T dbr.Element](ctx context.Context, c *Client, name string) (Controlled[T], error) {
	return withChannel(ctx, c, name, ReadCtrl[T])
}

// GetCtrlVector is ReadCtrlVector on a pooled channel for name.
func GetCtrlVector[T dbr.Element](ctx context.Context, c *Client, name string) (Controlled[[]T], error) {
	return withChannel(ctx, c, name, ReadCtrlVector[T])
}

// GetUnion reads one element in the native type of the process variable.
func GetUnion(ctx context.Context, c *Client, name string) (Union, error) {
	return withChannel(ctx, c, name, ReadUnion)
}

// GetUnionVector reads every element in the native type of the process
// variable.
func GetUnionVector(ctx context.Context, c *Client, name string) (UnionVector, error) {
	return withChannel(ctx, c, name, ReadUnionVector)
}
