package models

import (
	"errors"
	"time"
)

// ErrConfiguration marks a missing or invalid configuration. It is fatal to the request.
var ErrConfiguration = errors.New("configuration error")

// ErrValidation marks a malformed input record.
var ErrValidation = errors.New("validation error")

// ErrorType classifies an ErrorRecord.
type ErrorType string

const (
	ErrorTypeAnalysis   ErrorType = "ANALYSIS_ERROR"
	ErrorTypeAPI        ErrorType = "API_ERROR"
	ErrorTypeStorage    ErrorType = "STORAGE_ERROR"
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeScheduler  ErrorType = "SCHEDULER_ERROR"
)

// ErrorContext locates where an ErrorRecord was produced.
type ErrorContext struct {
	ZipCode    string `json:"zipCode,omitempty"`
	BuyboxName string `json:"buyboxName,omitempty"`
	Operation  string `json:"operation,omitempty"`
}

// ErrorRecord is a structured, persisted failure.
type ErrorRecord struct {
	ID           string        `json:"id,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	PropertyID   string        `json:"propertyId,omitempty"`
	ErrorType    ErrorType     `json:"errorType"`
	ErrorMessage string        `json:"errorMessage"`
	ErrorDetails string        `json:"errorDetails,omitempty"`
	Context      *ErrorContext `json:"context,omitempty"`
}
