package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/emsi-ai/tariff-engine/internal/llm"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/retrieval"
)

// Small-talk patterns short-circuit retrieval entirely.
var (
	greetingPattern  = regexp.MustCompile(`(?i)\b(bonjour|coucou|hello|salut|bonsoir|hi|hey)\b`)
	howAreYouPattern = regexp.MustCompile(`(?i)\b(ça va|ca va|comment ça va|comment allez[- ]vous)\b`)
	helpPattern      = regexp.MustCompile(`(?i)\b(aide|help|aidez-moi|comment utiliser|que peux-tu faire)\b`)
)

const (
	greetingResponse = "Bonjour ! Je suis votre assistant douanier. Posez-moi vos questions sur les codes SH, les droits d'importation et les taxes applicables."

	helpResponse = "Je peux vous aider à :\n" +
		"- identifier la position tarifaire (code SH) d'un produit ;\n" +
		"- retrouver les droits d'importation, la TVA et la TPI applicables ;\n" +
		"- consulter les accords préférentiels et les contingents.\n" +
		"Posez votre question en décrivant le produit, par exemple : \"Quels sont les droits pour la viande bovine congelée ?\""

	noAnswerResponse = "Désolé, je n'ai pas de réponse pour votre question."

	// previewLength bounds the excerpt used when the model gives nothing
	// back and we answer from raw chunks.
	previewLength = 200
)

// promptTemplate frames the retrieved context for the model. The rules pin
// the model to extraction: no outside knowledge, no invented figures.
const promptTemplate = `Tu es un assistant douanier expert en nomenclature tarifaire marocaine.

Réponds à la question en utilisant UNIQUEMENT le contexte fourni ci-dessous.

Structure ta réponse avec les sections suivantes quand l'information est disponible :
- Position Tarifaire : le code SH à 10 chiffres et sa désignation.
- Droits et Taxes : droit d'importation (DI), taxe parafiscale (TPI), TVA.
- Accords et Conventions : droits préférentiels, contingents.

Règles strictes :
1. N'utilise que les informations présentes dans le contexte.
2. N'invente jamais de code SH, de taux ou de contingent.
3. Cite les taux exactement comme ils figurent dans le contexte.
4. Si une information manque, indique qu'elle n'est pas disponible.
5. Ne cite pas de réglementation extérieure au contexte.
6. Réponds en français.
7. Reste factuel, sans opinion ni conseil juridique.
8. Conserve les unités et pourcentages d'origine.
9. Mentionne le code SH complet à 10 chiffres quand il est présent.
10. Si plusieurs codes correspondent, liste chacun séparément.
11. Ne répète pas la question dans la réponse.
12. Sois concis : pas de préambule ni de conclusion générale.

Contexte :
%s

Question : %s

Réponse :`

// Retriever is the search dependency of the chat service.
type Retriever interface {
	FindRelevantChunks(ctx context.Context, query string, topK int) ([]retrieval.SearchResult, error)
}

// Service answers questions over retrieved tariff context.
type Service struct {
	retriever        Retriever
	generator        llm.Generator
	history          HistoryStore
	maxContextChunks int
	logger           *observability.Logger
}

// NewService creates a chat service. maxContextChunks bounds how many
// retrieved chunks feed the prompt.
func NewService(retriever Retriever, generator llm.Generator, history HistoryStore, maxContextChunks int, logger *observability.Logger) *Service {
	if maxContextChunks <= 0 {
		maxContextChunks = 3
	}
	return &Service{
		retriever:        retriever,
		generator:        generator,
		history:          history,
		maxContextChunks: maxContextChunks,
		logger:           logger,
	}
}

// Ask answers one question within a session. Small talk and blank input
// short-circuit retrieval; a silent or failing model degrades to raw chunk
// previews rather than an error.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return noAnswerResponse, nil
	}

	if greetingPattern.MatchString(question) || howAreYouPattern.MatchString(question) {
		return s.respond(ctx, sessionID, question, greetingResponse), nil
	}
	if helpPattern.MatchString(question) {
		return s.respond(ctx, sessionID, question, helpResponse), nil
	}

	chunks, err := s.retriever.FindRelevantChunks(ctx, question, s.maxContextChunks)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Retrieval failed for chat question")
		return s.respond(ctx, sessionID, question, noAnswerResponse), nil
	}
	if len(chunks) == 0 {
		return s.respond(ctx, sessionID, question, noAnswerResponse), nil
	}
	if len(chunks) > s.maxContextChunks {
		chunks = chunks[:s.maxContextChunks]
	}

	prompt := fmt.Sprintf(promptTemplate, renderContext(chunks), question)
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Model produced no answer, using chunk previews")
		answer = previewAnswer(chunks)
	}

	return s.respond(ctx, sessionID, question, strings.TrimSpace(answer)), nil
}

// History returns the rendered conversation for a session.
func (s *Service) History(ctx context.Context, sessionID string) (string, error) {
	return s.history.History(ctx, sessionID)
}

// ClearHistory forgets a session.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	return s.history.Clear(ctx, sessionID)
}

func (s *Service) respond(ctx context.Context, sessionID, question, answer string) string {
	if err := s.history.Append(ctx, sessionID, question, answer); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Could not record conversation history")
	}
	return answer
}

func renderContext(chunks []retrieval.SearchResult) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[Extrait %d]\n%s\n\n", i+1, chunk.Text)
	}
	return strings.TrimSpace(sb.String())
}

// previewAnswer builds a degraded answer from chunk excerpts.
func previewAnswer(chunks []retrieval.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Voici les informations trouvées dans la documentation :\n")
	for _, chunk := range chunks {
		preview := chunk.Text
		if runes := []rune(preview); len(runes) > previewLength {
			preview = string(runes[:previewLength]) + "..."
		}
		sb.WriteString("\n- " + preview)
	}
	return sb.String()
}
