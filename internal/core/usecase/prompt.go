package usecase

import (
	"fmt"
	"strings"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

const systemPrompt = `Você é um analista jurídico especializado em legislação sanitária brasileira (ANVISA).
Responda em português do Brasil, com precisão e neutralidade.
Use EXCLUSIVAMENTE as evidências fornecidas; se não houver suporte, diga claramente que não encontrou base legal.
Inclua uma seção 'Referências' citando os índices [n] das evidências utilizadas e a trilha (Lei → Art. → § → Inciso) quando disponível.
Quando relevante, extraia trechos exatos entre aspas e explique em linguagem simples.`

const answerInstructions = `Instruções de resposta:
- Responda de forma direta e estruturada.
- Cite as evidências usadas como [n].
- Se as evidências forem insuficientes, diga isso explicitamente.
- Se houver ambiguidades, aponte-as e sugira onde procurar na legislação.`

const missingEvidenceText = "(texto indisponível)"

// BuildPrompt numbers evidence as [n] with its citation trail.
func BuildPrompt(query string, evidence []domain.Evidence) domain.Prompt {
	var b strings.Builder
	b.WriteString("Pergunta do usuário:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nEvidências (não invente além delas):\n")
	for _, ev := range evidence {
		fmt.Fprintf(&b, "\n[%d] (%s)\n", ev.Index, citationTrail(ev))
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			text = missingEvidenceText
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(answerInstructions)
	return domain.Prompt{System: systemPrompt, User: b.String()}
}

// citationTrail prefers the graph trail and falls back to the payload path.
func citationTrail(ev domain.Evidence) string {
	if ev.Trail.Known() {
		return ev.Trail.String()
	}
	path := ev.Payload.Path()
	if path.LawID == "" {
		return domain.UnknownTrailLabel
	}
	return strings.Join(path.Labels(domain.Law{ID: path.LawID}), " > ")
}
