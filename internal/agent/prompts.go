package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

const (
	// SentinelEnglish ends the search phase of an English analysis
	SentinelEnglish = "READY"
	// SentinelFrench ends the search phase of a French analysis
	SentinelFrench = "PRÊT"

	// NoSourcesNote replaces the evidence block when a search fails
	NoSourcesNote = "no sources found for this query"
)

const systemPromptEN = `You have access to a search engine tool. To invoke search, begin by explaining your reasoning for invoking search with the phrase
"REASON: ", then begin your query with the phrase "SEARCH: ". You may invoke the search tool as many times as needed, but you can only include one search per message.
After each search, you should wait for the response before proceeding with further searches. Today is %s. Your task is to analyze the
factuality of the given statement (for today's date) and state a score from 0 to 100, where 0 represents definitively false and 100 represents definitively true.
When you have finished conducting all searches, your only message should be "READY".
There should be no extra text. You must then wait for the User to specify their desired output format.
"REASON: " and "SEARCH: " should only be used when invoking the search tool and must not appear in any other context.

Statement: %s`

const systemPromptFR = `Vous avez accès à un moteur de recherche. Pour lancer la recherche, commencez par expliquer votre raisonnement avec la phrase
"REASON : ", puis commencez votre requête par la phrase "SEARCH : ". Vous pouvez invoquer le moteur de recherche autant de fois que nécessaire, mais vous ne pouvez l'invoquer qu'une seule fois par message.
L'assistant vous donnera les résultats, puis vous pourrez invoquer le moteur de recherche à nouveau. Aujourd'hui, nous sommes le %s. Votre tâche consiste à analyser la
véracité de l'affirmation donnée (pour la date d'aujourd'hui) et à indiquer un index de 0 à 100, où 0 représente définitivement faux et 100 représente définitivement vrai.
Lorsque vous avez terminé d'effectuer toutes les recherches, votre seul message devrait être "PRÊT".
Il ne doit pas y avoir de texte supplémentaire. Vous devez ensuite attendre que l'utilisateur spécifie le format de sortie souhaité.
"REASON : " et "SEARCH : " doivent seulement être utilisées lors de l'invocation du moteur de recherche et ne doivent pas apparaître dans d'autres contextes.

L'affirmation : %s`

// SystemPrompt builds the opening instructions for a statement
func SystemPrompt(lang model.Language, statement, context string, today time.Time) string {
	date := today.Format("January 2, 2006")
	tmpl := systemPromptEN
	contextLabel := "Context"
	if lang == model.French {
		date = today.Format("02/01/2006")
		tmpl = systemPromptFR
		contextLabel = "Contexte"
	}

	prompt := fmt.Sprintf(tmpl, date, strings.TrimSpace(statement))
	if c := strings.TrimSpace(context); c != "" {
		prompt += fmt.Sprintf("\n%s: %s", contextLabel, c)
	}
	return prompt
}

// Sentinel returns the ready token for a language
func Sentinel(lang model.Language) string {
	if lang == model.French {
		return SentinelFrench
	}
	return SentinelEnglish
}

// ResultsMessage wraps an evidence block as the next user turn
func ResultsMessage(lang model.Language, query, block string) string {
	if lang == model.French {
		return fmt.Sprintf("Résultats de la recherche pour « %s » :\n\n%s", query, block)
	}
	return fmt.Sprintf("Search results for %q:\n\n%s", query, block)
}

// NudgeMessage answers a turn that neither searched nor signalled readiness
func NudgeMessage(lang model.Language) string {
	if lang == model.French {
		return `Continuez. Utilisez "REASON : " puis "SEARCH : " pour une nouvelle recherche, ou répondez uniquement "PRÊT" si vous avez terminé vos recherches.`
	}
	return `Continue. Use "REASON: " then "SEARCH: " to search again, or reply with only "READY" if you have finished searching.`
}
