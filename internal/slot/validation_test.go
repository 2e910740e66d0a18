package slot

import (
	"errors"
	"testing"
)

func TestValidateYear(t *testing.T) {
	t.Parallel()

	loaded := []Year{{ID: "y1", Ano: 2024, Quantidade: 10}}

	cases := []struct {
		name       string
		ano        int
		quantidade int
		field      string
		message    string
	}{
		{name: "below range", ano: 1999, quantidade: 10, field: "ano", message: "Ano inválido"},
		{name: "above range", ano: 2101, quantidade: 10, field: "ano", message: "Ano inválido"},
		{name: "zero slots", ano: 2025, quantidade: 0, field: "quantidade", message: "Quantidade deve ser entre 1 e 9999"},
		{name: "too many slots", ano: 2025, quantidade: 10000, field: "quantidade", message: "Quantidade deve ser entre 1 e 9999"},
		{name: "duplicate year", ano: 2024, quantidade: 10, field: "ano", message: "Este ano já existe no sistema"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateYear(tc.ano, tc.quantidade, loaded)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if got := vErr.FieldErrors[tc.field]; got != tc.message {
				t.Fatalf("expected %q on %s, got %q", tc.message, tc.field, got)
			}
		})
	}

	t.Run("bounds are inclusive", func(t *testing.T) {
		if err := ValidateYear(MinYear, MinQuantity, loaded); err != nil {
			t.Fatalf("expected lower bounds to pass, got %v", err)
		}
		if err := ValidateYear(MaxYear, MaxQuantity, loaded); err != nil {
			t.Fatalf("expected upper bounds to pass, got %v", err)
		}
	})

	t.Run("duplicate message wins over range", func(t *testing.T) {
		err := ValidateYear(1990, 5, []Year{{Ano: 1990}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Error() != "Este ano já existe no sistema" {
			t.Fatalf("expected duplicate message, got %v", err)
		}
	})
}
