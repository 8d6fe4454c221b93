package services

import (
	"errors"

	apperrors "mktsummary/internal/errors"
)

// Batch service errors
var (
	ErrBatchNotFound   = apperrors.NewNotFoundError("batch")
	ErrBatchExists     = errors.New("batch already exists")
	ErrQueueFull       = errors.New("batch queue is full")
	ErrBatchNotRunning = errors.New("batch is not queued or running")
	ErrServiceStopped  = errors.New("batch service stopped")
)
