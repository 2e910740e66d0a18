package slot

import "sort"

// Bounds for year creation and the page size used to load a year's slots.
const (
	MinYear         = 2000
	MaxYear         = 2100
	MinQuantity     = 1
	MaxQuantity     = 9999
	DefaultQuantity = 1500
	PageSize        = 1000
)

const (
	fieldAno         = "ano"
	fieldQuantidade  = "quantidade"
	msgInvalidYear   = "Ano inválido"
	msgDuplicateYear = "Este ano já existe no sistema"
	msgQuantity      = "Quantidade deve ser entre 1 e 9999"
)

// ValidationError collects field level problems found before any write.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return v.FieldErrors[fields[0]]
}

// HasErrors reports whether any field level issue was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// ValidateYear checks a year creation request against the allowed ranges and
// the years already loaded. It returns nil when the request may be written.
func ValidateYear(ano, quantidade int, loaded []Year) error {
	vErr := &ValidationError{}
	for _, year := range loaded {
		if year.Ano == ano {
			vErr.add(fieldAno, msgDuplicateYear)
			break
		}
	}
	if ano < MinYear || ano > MaxYear {
		vErr.add(fieldAno, msgInvalidYear)
	}
	if quantidade < MinQuantity || quantidade > MaxQuantity {
		vErr.add(fieldQuantidade, msgQuantity)
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}
