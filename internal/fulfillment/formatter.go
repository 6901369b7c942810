package fulfillment

import (
	"fmt"
	"strings"

	"visitor-webhook/internal/visitors"
)

// Reply texts
const (
	TextInvalidIdentifier = "⚠️ Matrícula inválida ou não informada."
	TextMalformedRequest  = "⚠️ Requisição inválida: JSON não fornecido."
	TextNotFound          = "❌ Nenhuma informação encontrada para a matrícula %s."
	TextTryAgainLater     = "❌ Erro ao acessar a planilha. Tente novamente mais tarde."
	TextInternalError     = "❌ Erro interno."
	TextRecordsHeader     = "Registros encontrados:"
	TextNoReason          = "Nenhum motivo informado"
	TextServiceUp         = "✅ API do Rol de Visitas funcionando!"
)

var displayLabels = map[string]string{
	visitors.UnknownVisitor:  "Desconhecido",
	visitors.UndefinedStatus: "Indefinida",
}

// Format renders a lookup result as fulfillment text
func Format(result visitors.Result) string {
	switch result.Outcome {
	case visitors.OutcomeFound:
		return FormatRecords(result.Records)
	case visitors.OutcomeNotFound:
		return fmt.Sprintf(TextNotFound, result.Key)
	case visitors.OutcomeInvalidInput:
		return TextInvalidIdentifier
	case visitors.OutcomeTransientError:
		return TextTryAgainLater
	default:
		return TextInternalError
	}
}

// FormatRecords renders a numbered list of records, one per line
func FormatRecords(records []visitors.Record) string {
	var b strings.Builder
	b.WriteString(TextRecordsHeader)
	for i, r := range records {
		fmt.Fprintf(&b, "\n%d. 👤 Visitante: %s | 📌 Situação: %s", i+1, label(r.Visitor), label(r.Status))
		if reason := reasonText(r); reason != "" {
			fmt.Fprintf(&b, " | 📄 Motivo: %s", reason)
		}
	}
	return b.String()
}

// Response wraps a lookup result in a webhook response
func Response(result visitors.Result) WebhookResponse {
	return WebhookResponse{FulfillmentText: Format(result)}
}

func label(v string) string {
	if l, ok := displayLabels[v]; ok {
		return l
	}
	return v
}

func reasonText(r visitors.Record) string {
	if r.Reason != "" {
		return r.Reason
	}
	if r.IsIrregular() {
		return TextNoReason
	}
	return ""
}
