package app

import (
	"github.com/pkg/errors"

	"mediator/internal/protocol"
)

var (
	ErrInsufficientPow = errors.New("insufficient proof of work")
	ErrStaleMessage    = errors.New("message outside of accepted time window")
	ErrReplay          = errors.New("envelope already processed")
	ErrInboxFull       = errors.New("inbox is full")
)

// CantDoError ошибка участника, на которую отвечают сообщением CantDo.
type CantDoError struct {
	Reason protocol.CantDoReason
}

func (e *CantDoError) Error() string { return "cant do: " + string(e.Reason) }

func cantDo(reason protocol.CantDoReason) error {
	return &CantDoError{Reason: reason}
}
