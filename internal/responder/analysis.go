package responder

import (
	"regexp"
	"strconv"
	"strings"
)

// Keyword lists for the heuristic analysis. Matching is lowercase substring;
// messages come from WhatsApp, so accents are frequently dropped by typers
// and both spellings appear where it matters.
var (
	saleWords = []string{
		"quero", "vou querer", "vou levar", "pode separar", "separa pra mim",
		"fechado", "fechou", "aceito", "pode ser", "vou comprar", "me ve",
		"me vê", "encomendar", "encomenda",
	}

	humanWords = []string{
		"reclamação", "reclamacao", "reclamar", "problema", "horrível",
		"horrivel", "péssimo", "pessimo", "ruim demais", "atendente",
		"falar com alguém", "falar com alguem", "falar com a rosana",
		"humano", "gerente", "cancelar", "devolver", "devolução", "devolucao",
		"veio errado", "estragad",
	}

	categoryWords = map[string][]string{
		"preco":      {"preço", "preco", "quanto custa", "quanto é", "quanto e", "valor", "quanto ta", "quanto tá"},
		"entrega":    {"entrega", "entregar", "frete", "buscar", "retirar", "onde fica", "endereço", "endereco", "que horas"},
		"pagamento":  {"pix", "cartão", "cartao", "dinheiro", "pagamento", "pagar", "troco"},
		"produto":    {"pamonha", "curau", "bolo", "suco", "milho", "sabor", "doce", "salgad", "recheio"},
		"reclamacao": {"reclama", "problema", "ruim", "horrível", "horrivel", "péssimo", "pessimo", "errad", "estragad"},
	}
)

var amountRe = regexp.MustCompile(`[Rr]\$\s*(\d+(?:[.,]\d{1,2})?)`)

// Analysis is the heuristic classification of one exchange.
type Analysis struct {
	Sale       bool
	SaleAmount float64
	NeedsHuman bool
	Category   string
}

// Analyze classifies a customer message and the reply it got using keyword
// heuristics. Used directly by the Gemini responder and as a fallback when
// the OpenAI analysis call fails.
func Analyze(message, reply string) Analysis {
	msg := strings.ToLower(message)

	a := Analysis{Category: "geral"}

	for _, w := range saleWords {
		if strings.Contains(msg, w) {
			a.Sale = true
			break
		}
	}

	for _, w := range humanWords {
		if strings.Contains(msg, w) {
			a.NeedsHuman = true
			break
		}
	}

	// Complaints win over product/price mentions.
	for _, cat := range []string{"reclamacao", "preco", "entrega", "pagamento", "produto"} {
		if containsAny(msg, categoryWords[cat]) {
			a.Category = cat
			break
		}
	}

	if a.Sale {
		// Prefer the value quoted in the reply (the bot states totals there);
		// fall back to a value in the customer message.
		if v, ok := extractAmount(reply); ok {
			a.SaleAmount = v
		} else if v, ok := extractAmount(message); ok {
			a.SaleAmount = v
		}
	}

	return a
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func extractAmount(s string) (float64, bool) {
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
