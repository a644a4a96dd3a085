package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Общие
	ErrNotFound       = errors.New("запись не найдена")
	ErrBadRequest     = errors.New("неверный запрос")
	ErrInternalServer = errors.New("внутренняя ошибка сервера")
	ErrConflict       = errors.New("конфликт одновременного изменения, повторите запрос")

	// Уникальность
	ErrDuplicateCode = errors.New("подразделение с таким кодом уже существует")
	ErrDuplicateName = errors.New("подразделение с таким наименованием уже существует")

	// Структурные нарушения дерева
	ErrParentNotFound    = errors.New("родительское подразделение не найдено")
	ErrSelfParent        = errors.New("подразделение не может быть родителем самого себя")
	ErrCircularReference = errors.New("перенос создал бы цикл: новый родитель находится внутри переносимого поддерева")

	// Блокировка удаления
	ErrHasChildren  = errors.New("нельзя удалить подразделение с дочерними подразделениями")
	ErrHasEmployees = errors.New("нельзя удалить подразделение с сотрудниками")

	// Целостность данных
	ErrIntegrity = errors.New("нарушена целостность дерева подразделений")

	// Авторизация
	ErrEmptyAuthHeader   = errors.New("заголовок авторизации отсутствует")
	ErrInvalidAuthHeader = errors.New("неверный формат заголовка авторизации")
	ErrInvalidToken      = errors.New("недопустимый токен")
	ErrTokenExpired      = errors.New("срок действия токена истёк")
	ErrTokenIsNotAccess  = errors.New("ожидался access-токен")
	ErrUnauthorized      = errors.New("неавторизован")

	// Контекст
	ErrUserIDNotFoundInContext = errors.New("UserID не найден в контексте запроса")
)

// statusByError - соответствие доменных ошибок HTTP-статусам.
// Все, чего здесь нет, отдается как 500.
var statusByError = map[error]int{
	ErrNotFound:          http.StatusNotFound,
	ErrBadRequest:        http.StatusBadRequest,
	ErrConflict:          http.StatusConflict,
	ErrDuplicateCode:     http.StatusConflict,
	ErrDuplicateName:     http.StatusConflict,
	ErrParentNotFound:    http.StatusUnprocessableEntity,
	ErrSelfParent:        http.StatusUnprocessableEntity,
	ErrCircularReference: http.StatusUnprocessableEntity,
	ErrHasChildren:       http.StatusConflict,
	ErrHasEmployees:      http.StatusConflict,
	ErrIntegrity:         http.StatusInternalServerError,

	ErrEmptyAuthHeader:         http.StatusUnauthorized,
	ErrInvalidAuthHeader:       http.StatusUnauthorized,
	ErrInvalidToken:            http.StatusUnauthorized,
	ErrTokenExpired:            http.StatusUnauthorized,
	ErrTokenIsNotAccess:        http.StatusUnauthorized,
	ErrUnauthorized:            http.StatusUnauthorized,
	ErrUserIDNotFoundInContext: http.StatusUnauthorized,
}

// StatusOf возвращает HTTP-статус для доменной ошибки (с учетом обёрток).
func StatusOf(err error) (int, bool) {
	for sentinel, code := range statusByError {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	return http.StatusInternalServerError, false
}

// HttpError - ошибка с готовым HTTP-статусом и сообщением для клиента.
// Err хранит исходную причину и попадает только в логи, не в ответ.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Details interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func NewHttpError(code int, message string, err error, details interface{}) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Details: details}
}
