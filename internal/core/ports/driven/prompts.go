package driven

import "strings"

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptAnswerDefault is the English answer template.
	// Placeholders: {{context}} and {{question}}.
	PromptAnswerDefault = "answer_default"

	// PromptAnswerAlternate is the Norwegian answer template.
	// Placeholders: {{context}} and {{question}}.
	PromptAnswerAlternate = "answer_alternate"

	// PromptCitedDefault is the English cited-answer template. The generator
	// answers with a JSON object keyed by source document.
	// Placeholders: {{context}}, {{question}} and {{no_source}}.
	PromptCitedDefault = "cited_default"

	// PromptCitedAlternate is the Norwegian cited-answer template.
	// Placeholders: {{context}}, {{question}} and {{no_source}}.
	PromptCitedAlternate = "cited_alternate"

	// PromptChatSystem is the system prompt for interactive chat.
	PromptChatSystem = "chat_system"

	// PromptLLMChunking asks the generator to segment a text.
	// Placeholders: {{word_limit}}, {{overlap}} and {{text}}.
	PromptLLMChunking = "llm_chunking"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service uses built-in prompts.
	SetPromptStore(store PromptStore)
}

// defaultPrompts are the built-in templates. File-backed stores seed their
// directory from these and fall back to them.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	PromptAnswerDefault: `You are an AI assistant that helps answer questions using the provided information.
Based on the following context information:
{{context}}
Question: {{question}}
Answer the question based on the information given above. If the answer is not found in the context,
say that you do not have enough information to answer the question. Be precise and specific.
Name the source document of the information you use.`,

	PromptAnswerAlternate: `Du er en norsk AI-assistent som hjelper med å svare på spørsmål ved hjelp av gitt informasjon.
Basert på følgende kontekstinformasjon:
{{context}}
Spørsmål: {{question}}
Svar på spørsmålet basert på informasjonen gitt ovenfor. Legg til dokumentnavnet som kilde for informasjonen du gir,
for eksempel "Kilde: [navn-på-kilde]". Hvis svaret ikke finnes i konteksten, si "Beklager, jeg har ikke informasjon om dette."
og ikke legg ved kilde. Vær presis og konkret.`,

	PromptCitedDefault: `You are Milo, an AI assistant that answers questions using only the information given.
Context information:
{{context}}
Question: {{question}}
Answer the question based EXCLUSIVELY on the context above and return the answer as JSON.

IMPORTANT:
1. For each document that answers the question, add one key with the document name exactly as it appears
   in the context and the answer drawn from that document as the value, for example
   {"handbook.txt": "answer one", "policies.json": "answer two"}.
2. If NONE of the documents answer this specific question, return exactly
   {"{{no_source}}": "Sorry, I could not find a relevant answer in the given information."}
   with no other keys and no other text.`,

	PromptCitedAlternate: `Du er en norsk AI-assistent med navn Milo som hjelper med å svare på spørsmål ved hjelp av gitt informasjon.
Basert KUN på følgende kontekstinformasjon:
{{context}}
Spørsmål: {{question}}
Svar på spørsmålet basert EKSKLUSIVT på informasjonen ovenfor. Returner svaret som JSON.

VIKTIG:
1. Hvis du finner et relevant svar i konteksten for en kilde, skal JSON se slik ut:
   {"kilde1.txt": "svar1", "kilde2.json": "svar2"}. Bruk dokumentnavnet slik det står i konteksten som nøkkel.
2. Hvis du ABSOLUTT IKKE finner et relevant svar på det SPESIFIKKE spørsmålet i NOEN av kildene, MÅ du returnere
   EKSAKT {"{{no_source}}": "Beklager, jeg fant ikke et relevant svar i den gitte informasjonen."}
   uten andre nøkler og uten annen tekst.`,

	PromptChatSystem: `You are Milo, an assistant that answers questions about an indexed document collection.
Each user turn includes passages retrieved for that question. Answer only from those passages,
name the source document you used, and say so when the passages do not contain the answer.`,

	PromptLLMChunking: `You will receive a document. Split it into segments whose content belongs together, so that each
segment can be embedded on its own and retrieved later for question answering.

Rules:
- Copy every segment verbatim from the document, in document order. Do not rewrite, translate or summarise.
- Every part of the document must appear in at least one segment.
- A segment must not exceed {{word_limit}} words.
- Consecutive segments may repeat up to {{overlap}} words from the end of the previous segment.
- Prefer larger segments over smaller ones.

Respond with JSON only, in the form {"chunks": ["first segment", "second segment"]}.

Document:
{{text}}`,
}

// DefaultPrompt returns the built-in template for name.
func DefaultPrompt(name string) (string, bool) {
	p, ok := defaultPrompts[name]
	return p, ok
}

// DefaultPromptNames returns the names of all built-in templates.
func DefaultPromptNames() []string {
	return []string{
		PromptAnswerDefault, PromptAnswerAlternate,
		PromptCitedDefault, PromptCitedAlternate,
		PromptChatSystem, PromptLLMChunking,
	}
}

// requiredPlaceholders lists the keys each template must contain for its
// caller to produce a usable prompt.
var requiredPlaceholders = map[string][]string{
	PromptAnswerDefault:   {"context", "question"},
	PromptAnswerAlternate: {"context", "question"},
	PromptCitedDefault:    {"context", "question", "no_source"},
	PromptCitedAlternate:  {"context", "question", "no_source"},
	PromptLLMChunking:     {"text"},
}

// MissingPlaceholders returns the required {{key}} placeholders absent from
// tmpl, in declaration order. Templates without requirements never miss any.
func MissingPlaceholders(name, tmpl string) []string {
	var missing []string
	for _, key := range requiredPlaceholders[name] {
		if !strings.Contains(tmpl, "{{"+key+"}}") {
			missing = append(missing, key)
		}
	}
	return missing
}

// RenderPrompt replaces every {{key}} in tmpl with vars[key].
// Unknown placeholders are left untouched.
func RenderPrompt(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
