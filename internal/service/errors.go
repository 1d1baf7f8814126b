package service

import "errors"

var (
	ErrNotFound           = errors.New("error symbol not found")
	ErrQuoteUnavailable   = errors.New("error quote provider unavailable")
	ErrInvalidShares      = errors.New("error share count must be a positive integer")
	ErrInsufficientFunds  = errors.New("error insufficient funds")
	ErrInsufficientShares = errors.New("error insufficient shares")
	ErrUserAlreadyExists  = errors.New("error username already taken")
	ErrWrongCredentials   = errors.New("error invalid username or password")
	ErrPasswordMismatch   = errors.New("error passwords do not match")
	ErrEmptyField         = errors.New("error required field is empty")
)
