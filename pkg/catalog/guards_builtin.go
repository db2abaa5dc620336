package catalog

import "github.com/caseflow/caseflow/pkg/models"

// ValueTruthy builds a guard that checks whether the named context value is
// present and truthy: a true bool, a non-zero number, or a non-empty string.
// Embedding applications register these under domain names, e.g.
// reg.Register("approved", catalog.ValueTruthy("approved")).
func ValueTruthy(key string) Guard {
	return func(ctx models.ExecutionContext) (bool, error) {
		value, ok := ctx.Values[key]
		if !ok {
			return false, nil
		}

		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return v != "", nil
		case float64:
			return v != 0, nil
		case int:
			return v != 0, nil
		default:
			return value != nil, nil
		}
	}
}

// RegisterBuiltinGuards installs the guards every deployment gets for free.
func RegisterBuiltinGuards(reg *GuardRegistry) error {
	if err := reg.Register("always", func(models.ExecutionContext) (bool, error) {
		return true, nil
	}); err != nil {
		return err
	}

	return reg.Register("never", func(models.ExecutionContext) (bool, error) {
		return false, nil
	})
}
