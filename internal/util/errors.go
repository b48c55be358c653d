package util

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrExtraction        = errors.New("no extractable text found in file")
	ErrFileTooLarge      = errors.New("file exceeds maximum upload size")

	ErrEmbeddingUnavailable = errors.New("all embedding providers exhausted")
	ErrLLMUnavailable       = errors.New("all llm providers exhausted")
)
