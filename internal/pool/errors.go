package pool

import (
	"errors"
	"fmt"

	"github.com/ubuygold/ledgerpool/internal/db"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

// Sentinel errors.
var (
	ErrNoAccountAvailable  = errors.New("no account available")
	ErrInvalidCredential   = provider.ErrInvalidCredential
	ErrProviderCallFailed  = errors.New("provider call failed")
	ErrValidationFailed    = errors.New("credential validation failed")
	ErrDuplicateCredential = db.ErrDuplicateAccount
	ErrAccountNotFound     = db.ErrAccountNotFound
	ErrInvalidStatus       = errors.New("status can only be set to active or disabled")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrInvalidInput        = errors.New("invalid input")
)

// CallError reports a failed provider call together with the account it used.
type CallError struct {
	Provider    model.Provider
	AccountID   string
	AccountName string
	Err         error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s call via account %q failed: %v", e.Provider, e.AccountName, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is matches ErrProviderCallFailed for every failure that is not a rejected credential.
func (e *CallError) Is(target error) bool {
	return target == ErrProviderCallFailed && !errors.Is(e.Err, ErrInvalidCredential)
}
