package dto

import (
	"github.com/aarondl/null/v8"
)

// Optional-типы для частичных обновлений: поле различает три состояния -
// отсутствует в JSON (Set=false, не трогать), явный null (Set=true,
// Valid=false, сбросить в NULL) и значение. Стандартный json не вызывает
// UnmarshalJSON для пропущенных полей, поэтому факт присутствия фиксируем сами.

type OptionalString struct {
	null.String
	Set bool
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.String.UnmarshalJSON(data)
}

type OptionalUint64 struct {
	null.Uint64
	Set bool
}

func (o *OptionalUint64) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.Uint64.UnmarshalJSON(data)
}
