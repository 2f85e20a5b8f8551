package broadcast

import "errors"

var (
	// ErrInvalidInput means required fields are missing or malformed; no provider call was made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized means the provider rejected the bot credential.
	ErrUnauthorized = errors.New("invalid bot token")
	// ErrProcessing means the run failed after the credential was accepted
	// (webhook removal or feed fetch). Per-recipient failures never produce it.
	ErrProcessing = errors.New("broadcast processing failed")
)
