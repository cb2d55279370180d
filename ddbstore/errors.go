package ddbstore

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ValidationException mirrors the service error the SDK does not model as a
// concrete type.
type ValidationException struct {
	Message string
}

func (e *ValidationException) Error() string {
	return fmt.Sprintf("ValidationException: %s", e.Message)
}

func (e *ValidationException) ErrorCode() string             { return "ValidationException" }
func (e *ValidationException) ErrorMessage() string          { return e.Message }
func (e *ValidationException) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func validationError(format string, args ...any) error {
	return &ValidationException{Message: fmt.Sprintf(format, args...)}
}

func tableNotFound(name string) error {
	return &types.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Requested resource not found: Table: %s not found", name)),
	}
}

func tableExists(name string) error {
	return &types.ResourceInUseException{
		Message: aws.String(fmt.Sprintf("Table already exists: %s", name)),
	}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
	}
}
