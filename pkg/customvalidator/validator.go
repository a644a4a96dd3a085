package customvalidator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidations регистрирует кастомные правила валидации.
func RegisterCustomValidations(v *validator.Validate) error {
	return v.RegisterValidation("dept_code", isDepartmentCode)
}

// Код подразделения - сегмент материализованного пути и одновременно
// часть LIKE-шаблонов префиксных запросов, поэтому формат жесткий:
// только заглавные латинские буквы и цифры.
var deptCodeRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,31}$`)

func isDepartmentCode(fl validator.FieldLevel) bool {
	return deptCodeRegex.MatchString(fl.Field().String())
}
