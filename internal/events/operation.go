package events

import "time"

// OperationStart is emitted before projectors are planned for an operation.
type OperationStart struct {
	Query         string
	OperationName string
	OperationType string
}

// OperationFinish is emitted after every field of an operation was planned.
type OperationFinish struct {
	Query         string
	OperationName string
	OperationType string
	Fields        int
	Errors        []error
	Duration      time.Duration
}
