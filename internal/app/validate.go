package app

import (
	"strings"

	"costamar_booking/internal/domain"
)

// Values the conversational layer leaves behind when the customer never
// answered a question. Any of these counts as missing.
var placeholders = map[string]bool{
	"": true, "-": true, "n/a": true, "na": true, "x": true, "xx": true,
	"tbd": true, "pendiente": true, "por definir": true, "sin dato": true,
}

func isPlaceholder(v string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(v))]
}

// missingFields returns the customer-facing names of every field that is
// absent or a placeholder. An empty slice means the request is bookable.
func missingFields(req domain.BookingRequest) []string {
	var missing []string

	name := strings.TrimSpace(req.CustomerName)
	if isPlaceholder(name) || len(strings.Fields(name)) < 2 {
		missing = append(missing, "nombre completo")
	}
	if isPlaceholder(req.Email) || !strings.Contains(req.Email, "@") {
		missing = append(missing, "email")
	}
	if isPlaceholder(req.Phone) {
		missing = append(missing, "teléfono")
	}
	// a day pass starts and ends the same day; overnight stays need a later checkout
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() || req.CheckOut.Before(req.CheckIn) ||
		(req.Category != domain.CategoryPasadia && !req.CheckOut.After(req.CheckIn)) {
		missing = append(missing, "fechas de estadía")
	}
	if len(req.Parties) == 0 {
		missing = append(missing, "número de personas")
	} else {
		for _, p := range req.Parties {
			if p.Adults <= 0 {
				missing = append(missing, "número de adultos")
				break
			}
		}
	}
	if isPlaceholder(req.PaymentRef) && req.PaidAmount <= 0 {
		missing = append(missing, "comprobante de pago")
	}
	return missing
}
