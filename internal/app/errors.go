package app

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrChatNotFound     = errors.New("chat not found")
	ErrDocumentNotFound = errors.New("document not found")

	// ErrExtraction: the upload is not a readable PDF. Retrying the same
	// file will not help.
	ErrExtraction = errors.New("pdf text extraction failed")

	// ErrIndex: the embedding provider or the vector store failed during
	// ingestion. The upload is aborted with nothing persisted.
	ErrIndex = errors.New("chunk indexing failed")

	// ErrNoDocumentsIndexed: the vector collection does not exist yet.
	// Surfaced to callers as "upload a document first", not a server fault.
	ErrNoDocumentsIndexed = errors.New("no documents indexed yet")

	// ErrMalformedSummary: the model's structured summary output could not
	// be parsed. Ingestion still succeeds with an empty summary.
	ErrMalformedSummary = errors.New("malformed summary output")
)
