package qdrant

import (
	"strconv"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/qdrant/go-client/qdrant"
)

// toValueMap конвертирует payload в формат Qdrant.
// Непредставимые значения отклоняются до сетевого вызова.
func toValueMap(m map[string]any) (map[string]*qdrant.Value, error) {
	values, err := qdrant.TryValueMap(m)
	if err != nil {
		return nil, e.Wrap(err.Error(), e.ErrUnsupportedMetadata)
	}

	return values, nil
}

// fromValueMap конвертирует payload Qdrant в карту Go-значений.
func fromValueMap(values map[string]*qdrant.Value) map[string]any {
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = fromValue(v)
	}

	return m
}

func fromValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_ListValue:
		list := kind.ListValue.GetValues()
		out := make([]any, 0, len(list))
		for _, item := range list {
			out = append(out, fromValue(item))
		}
		return out
	case *qdrant.Value_StructValue:
		return fromValueMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}

// pointID возвращает строковое представление идентификатора точки.
func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}

	return strconv.FormatUint(id.GetNum(), 10)
}

// denseVector извлекает плотный вектор из ответа Qdrant.
func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if dense := out.GetDense().GetData(); len(dense) > 0 {
		return dense
	}

	return out.GetData()
}
