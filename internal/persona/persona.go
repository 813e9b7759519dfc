// Package persona builds the seller persona prompt from the business profile.
package persona

import (
	"fmt"
	"strings"
	"time"

	"github.com/zapvendas/zapvendas/internal/config"
)

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// Persona renders the system prompt for the responder. The prompt depends on
// the current date because the stand schedule changes by weekday.
type Persona struct {
	business config.BusinessConfig
	examples *Examples
	now      func() time.Time
}

// New builds a Persona from the business profile.
func New(business config.BusinessConfig, examples *Examples) *Persona {
	return &Persona{business: business, examples: examples, now: time.Now}
}

// SystemPrompt renders the full prompt for the current moment.
func (p *Persona) SystemPrompt() string {
	now := p.now()

	var b strings.Builder
	owner := p.business.OwnerName
	if owner == "" {
		owner = "a dona"
	}

	fmt.Fprintf(&b, "Você é a assistente de vendas de %s, do negócio %s, no WhatsApp.\n", owner, p.business.Name)
	if p.business.About != "" {
		fmt.Fprintf(&b, "%s\n", p.business.About)
	}
	b.WriteString("\n")

	if len(p.business.Products) > 0 {
		b.WriteString("Tabela de preços:\n")
		for _, prod := range p.business.Products {
			fmt.Fprintf(&b, "- %s: R$ %.2f", prod.Name, prod.Price)
			if prod.Note != "" {
				fmt.Fprintf(&b, " (%s)", prod.Note)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	p.writeSchedule(&b, now)

	b.WriteString(`
Regras de atendimento:
- Responda sempre em português, de forma simpática e curta (1 a 3 frases).
- Nunca invente preço, sabor ou data que não esteja acima.
- Se o cliente quiser encomendar, confirme produto, quantidade e valor total.
- Se não souber responder, ou se o cliente reclamar, diga que vai chamar ` + owner + ` e não tente resolver sozinha.
- Nunca diga que você é um robô ou uma IA.
`)

	if p.examples != nil {
		if text := p.examples.Text(); text != "" {
			b.WriteString("\nExemplos de conversas reais para imitar o tom:\n")
			b.WriteString(text)
		}
	}

	return b.String()
}

// writeSchedule describes today's stand (if any) and the next one.
func (p *Persona) writeSchedule(b *strings.Builder, now time.Time) {
	if len(p.business.Stands) == 0 {
		return
	}

	fmt.Fprintf(b, "Hoje é %s, %s.\n", weekdayNames[now.Weekday()], now.Format("02/01/2006"))

	var today *config.Stand
	for i := range p.business.Stands {
		if p.business.Stands[i].Weekday == now.Weekday() {
			today = &p.business.Stands[i]
			break
		}
	}

	if today != nil {
		fmt.Fprintf(b, "HOJE tem barraca: %s, das %s às %s.\n", today.Place, today.Start, today.End)
	} else if next := p.nextStand(now); next != nil {
		days := (int(next.Weekday) - int(now.Weekday()) + 7) % 7
		when := weekdayNames[next.Weekday]
		if days == 1 {
			when = "amanhã (" + when + ")"
		}
		fmt.Fprintf(b, "Hoje não tem barraca. A próxima é %s: %s, das %s às %s.\n",
			when, next.Place, next.Start, next.End)
	}
}

func (p *Persona) nextStand(now time.Time) *config.Stand {
	best := -1
	bestDays := 8
	for i, stand := range p.business.Stands {
		days := (int(stand.Weekday) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		if days < bestDays {
			bestDays = days
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return &p.business.Stands[best]
}
