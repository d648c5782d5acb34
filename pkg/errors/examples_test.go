package errors_test

import (
	"fmt"

	"github.com/agentstation/blockquote/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	err := &errors.NotFoundError{
		Resource: "record",
		ID:       "1234",
	}

	if errors.IsNotFound(err) {
		fmt.Println("Resource not found")
	}

	// Output: Resource not found
}

// Example_kindOf demonstrates resolving the kind of an external source failure.
func Example_kindOf() {
	err := errors.NewSourceError("x", "1234", errors.KindNotAuthorized, nil)

	switch errors.KindOf(err) {
	case errors.KindNotFound, errors.KindNotAuthorized:
		fmt.Println("counterpart is gone")
	case errors.KindRateLimited:
		fmt.Println("slow down")
	default:
		fmt.Println("abort")
	}

	// Output: counterpart is gone
}

// Example_aggregateError demonstrates inspecting a failed batch.
func Example_aggregateError() {
	err := &errors.AggregateError{
		Batch: "fetch",
		Total: 3,
		Errors: []*errors.OperationError{
			errors.NewOperationError("record b", errors.NewSourceError("x", "y", errors.KindRateLimited, nil)),
		},
	}

	fmt.Println(err.Count(errors.KindRateLimited), errors.IsRateLimited(err))

	// Output: 1 true
}
