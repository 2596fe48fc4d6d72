package models

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("authentication failed")
	ErrUpload     = errors.New("blob upload failed")
	ErrPublish    = errors.New("publish failed")
	ErrTranscode  = errors.New("media compression not possible")
)
