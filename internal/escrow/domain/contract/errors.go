package contract

import apperrors "github.com/lockupfinance/lockup/internal/platform/errors"

var (
	// ErrNotReceiver indicates the caller is not the contract's receiver.
	ErrNotReceiver = apperrors.New(apperrors.CodeNotContractReceiver, "only the contract receiver may decide on it")
	// ErrNotSender indicates the caller is not the contract's sender.
	ErrNotSender = apperrors.New(apperrors.CodeNotContractSender, "only the contract sender may release a milestone")
)
