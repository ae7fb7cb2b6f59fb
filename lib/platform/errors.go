package platform

import "errors"

// Sentinel errors returned by engines through requests and transactions.
var (
	ErrEnvClosed           = errors.New("platform: environment is closed")
	ErrHandleClosed        = errors.New("platform: handle is closed")
	ErrCollectionNotFound  = errors.New("platform: collection not found")
	ErrCollectionExists    = errors.New("platform: collection already exists")
	ErrIndexNotFound       = errors.New("platform: index not found")
	ErrIndexExists         = errors.New("platform: index already exists")
	ErrKeyExists           = errors.New("platform: key already exists")
	ErrInvalidKey          = errors.New("platform: invalid key type")
	ErrNotInScope          = errors.New("platform: collection not in transaction scope")
	ErrReadOnlyTxn         = errors.New("platform: write operation in read-only transaction")
	ErrNotUpgradeTxn       = errors.New("platform: schema mutation outside upgrade transaction")
	ErrConstraintViolation = errors.New("platform: unique index constraint violation")
	ErrVersionBelowCurrent = errors.New("platform: requested version is below the stored version")
)
