package agent

import (
	"fmt"
	"strings"
)

const (
	ModeTechnical = "technical"
	ModeSales     = "sales"
	ModeInvestor  = "investor"
)

var noAnswer = map[string]string{
	"sv": "ospecificerat i underlaget",
	"en": "not specified in the source material",
}

// NoAnswer is the fixed reply used when nothing in the collection can ground
// an answer. Unknown languages fall back to Swedish.
func NoAnswer(language string) string {
	if s, ok := noAnswer[language]; ok {
		return s
	}
	return noAnswer["sv"]
}

var modeInstructions = map[string]map[string]string{
	"sv": {
		ModeTechnical: "Du är en teknisk expert på energisystem. Svara med tekniska termer, mätvärden, " +
			"integrationskrav, risker, cybersäkerhet och regelverk. Var precis och detaljerad.",
		ModeSales: "Du är en säljrådgivare. Förklara kundvärde i enkel svenska. Lyft fördelar, " +
			"riskkontroll och varför Solpulsen är det bästa valet. Håll det kortfattat och övertygande.",
		ModeInvestor: "Du är en affärsanalytiker. Fokusera på marknadspotential, competitive moat, " +
			"skalbarhet, compliance, riskprofil och intäktsspår. Var strukturerad och faktabaserad.",
	},
	"en": {
		ModeTechnical: "You are a technical expert on energy systems. Answer with technical terms, measurements, " +
			"integration requirements, risks, cyber security and regulation. Be precise and detailed.",
		ModeSales: "You are a sales advisor. Explain customer value in plain English. Highlight benefits, " +
			"risk control and why Solpulsen is the best choice. Keep it short and convincing.",
		ModeInvestor: "You are a business analyst. Focus on market potential, competitive moat, " +
			"scalability, compliance, risk profile and revenue streams. Be structured and factual.",
	},
}

const systemTemplateSV = `Du är Pulsen A.I. Knowledge Engine, ett internt kunskapssystem för Solpulsen.

%s

REGLER SOM ALDRIG FÅR BRYTAS:
1. Svara ENDAST baserat på den kontext som tillhandahålls nedan.
2. Om informationen saknas i kontexten, skriv exakt: "%s"
3. Inga gissningar, inga antaganden, ingen information utanför kontexten.
4. Skriv alltid på svenska.
5. Ingen fluff. Var koncis och faktabaserad.
6. Avsluta alltid svaret med en källförteckning i formatet:
   KÄLLOR:
   - [Dokumenttitel, version, sida X-Y, Chunk ID: <id>]

KONTEXT:
%s`

const systemTemplateEN = `You are Pulsen A.I. Knowledge Engine, an internal knowledge system for Solpulsen.

%s

RULES THAT MUST NEVER BE BROKEN:
1. Answer ONLY from the context provided below.
2. If the information is missing from the context, write exactly: "%s"
3. No guesses, no assumptions, no information from outside the context.
4. Always write in English.
5. No fluff. Be concise and factual.
6. Always end the answer with a source list in the format:
   SOURCES:
   - [Document title, version, page X-Y, Chunk ID: <id>]

CONTEXT:
%s`

// SystemPrompt renders the grounding rules, the mode instruction and the
// assembled context. Unknown modes use the technical instruction.
func SystemPrompt(mode, language, context string) string {
	instructions, ok := modeInstructions[language]
	if !ok {
		language = "sv"
		instructions = modeInstructions[language]
	}
	instruction, ok := instructions[mode]
	if !ok {
		instruction = instructions[ModeTechnical]
	}
	template := systemTemplateSV
	if language == "en" {
		template = systemTemplateEN
	}
	return fmt.Sprintf(template, instruction, NoAnswer(language), context)
}

func UserPrompt(question, constraints, language string) string {
	question = strings.TrimSpace(question)
	constraints = strings.TrimSpace(constraints)
	if constraints == "" {
		return question
	}
	label := "Begränsningar"
	if language == "en" {
		label = "Constraints"
	}
	return fmt.Sprintf("%s\n\n%s: %s", question, label, constraints)
}
