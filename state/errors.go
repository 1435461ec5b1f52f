package state

import (
	"errors"
	"fmt"
)

var (
	ErrBurnAmountInvalid = errors.New("burn amount must be positive")
	ErrBurnKindInvalid   = errors.New("burn kind is invalid")
	ErrMintAmountInvalid = errors.New("mint amount must be positive")
	ErrMintStatusInvalid = errors.New("mint status is invalid")
	ErrMintNotQueued     = errors.New("a new mint record must start as queued")
)

func ErrStoredAmountInvalid(stored string) error {
	return fmt.Errorf("stored amount is not a base-10 integer: %q", stored)
}

func ErrMintTransition(from, to MintStatus) error {
	return fmt.Errorf("illegal mint status transition: from=%s, to=%s", from, to)
}
