package banking

import (
	"regexp"
	"strings"
)

// PaymentMethod is the settlement rail inferred from a statement description.
type PaymentMethod string

const (
	PaymentPIX           PaymentMethod = "PIX"
	PaymentTED           PaymentMethod = "TED"
	PaymentDOC           PaymentMethod = "DOC"
	PaymentBoleto        PaymentMethod = "BOLETO"
	PaymentFee           PaymentMethod = "TARIFA"
	PaymentTransferencia PaymentMethod = "TRANSFERENCIA"
	PaymentOther         PaymentMethod = "OUTROS"
)

var paymentMethodRules = []struct {
	method  PaymentMethod
	pattern *regexp.Regexp
}{
	{PaymentPIX, regexp.MustCompile(`\bPIX`)},
	{PaymentTED, regexp.MustCompile(`\bTED\b`)},
	{PaymentDOC, regexp.MustCompile(`\bDOC\b`)},
	{PaymentBoleto, regexp.MustCompile(`BOLETO|COBRANCA|LIQ\.COB`)},
	{PaymentFee, regexp.MustCompile(`TARIFA|CESTA DE RELACIONAMENTO|MANUTENCAO DE TITULOS`)},
	{PaymentTransferencia, regexp.MustCompile(`TRANSF`)},
}

// DetectPaymentMethod classifies description; the first matching rule wins.
func DetectPaymentMethod(description string) PaymentMethod {
	upper := strings.ToUpper(description)
	for _, rule := range paymentMethodRules {
		if rule.pattern.MatchString(upper) {
			return rule.method
		}
	}
	return PaymentOther
}
