package shared

import "errors"

// Виды ошибок. Проверяются через errors.Is и определяют HTTP-статус.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInProgress = errors.New("operation already in progress")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError - ошибка с местом возникновения (Domain.Op), видом (Kind)
// и, возможно, исходной причиной (Err).
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap отдаёт причину, а без неё - вид ошибки.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

// Is проверяет вид ошибки: причина уже доступна через Unwrap.
func (e *DomainError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return WrapError(domain, op, kind, message, nil)
}

func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Ошибки таблицы результатов и ejudge.
var (
	ErrStudentNotFound   = NewDomainError("standings", "Find", ErrNotFound, "student not found")
	ErrSnapshotNotFound  = NewDomainError("standings", "FindSnapshot", ErrNotFound, "snapshot not found")
	ErrEmptyStandings    = NewDomainError("standings", "Validate", ErrEmptyValue, "standings table is empty")
	ErrSyncInProgress    = NewDomainError("standings", "Sync", ErrInProgress, "standings sync already running")
	ErrEjudgeUnavailable = NewDomainError("ejudge", "FetchStandings", ErrServiceUnavailable, "ejudge is unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation отличает ошибки ввода (400) от всего остального.
func IsValidation(err error) bool {
	return isAny(err, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange)
}

// IsExternalService сообщает, что виноват ejudge (502).
func IsExternalService(err error) bool {
	return isAny(err, ErrExternalService, ErrServiceUnavailable, ErrRateLimited)
}

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
