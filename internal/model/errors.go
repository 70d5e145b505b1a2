package model

import "errors"

var (
	// ErrNotFound covers missing or misowned records: jobs, documents,
	// rubrics, and context documents. Never retried.
	ErrNotFound = errors.New("record not found")

	// ErrStageOrder means the overall-scoring stage ran before both
	// sibling stages finished. That can only happen when the task
	// graph's dependency wiring is broken, so it fails loudly and is
	// never retried.
	ErrStageOrder = errors.New("overall scoring requires both cv and project scores")
)
