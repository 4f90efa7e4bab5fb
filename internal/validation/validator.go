package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the storefront renders labelledPrice as the struck-through reference
	// price; a selling price above it would display as a negative discount.
	v.RegisterStructValidation(submitProductStructValidation, SubmitProductRequest{})

	return v
}

func submitProductStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(SubmitProductRequest)

	if req.Price > req.LabelledPrice {
		sl.ReportError(req.Price, "price", "Price", "price_lte_labelled",
			fmt.Sprintf("price %.2f exceeds labelled price %.2f", req.Price, req.LabelledPrice))
	}
}
