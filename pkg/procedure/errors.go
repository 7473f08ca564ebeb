package procedure

import "errors"

var (
	ErrRecordNotFound  = errors.New("test record not found")
	ErrRecordCompleted = errors.New("test record already completed")
	ErrInvalidAxis     = errors.New("invalid reference axis")
)
