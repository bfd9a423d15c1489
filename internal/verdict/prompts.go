package verdict

import "github.com/ppiankov/veracity/internal/model"

const verdictPromptEN = `After providing all your analysis steps, summarize your analysis and state a score from 0 to 100,
where 0 represents definitively false and 100 represents definitively true, in the following JSON format:
{
    "veracity_score": <integer between 0 and 100>,
    "analysis": "<detailed analysis text>"
}

Important formatting rules:
1. Provide ONLY the JSON object, no additional text
2. Ensure all special characters in the analysis text are properly escaped
3. The analysis field should be a single line with newlines represented as \n
4. Do not include any control characters`

const verdictPromptFR = `Après avoir fourni toutes vos étapes d'analyse, résumez votre analyse et indiquez un score de 0 à 100,
où 0 représente définitivement faux et 100 représente définitivement vrai, dans le format JSON suivant:
{
    "veracity_score": <integer entre 0 et 100>,
    "analysis": "<résumé de votre analyse>"
}

Règles de formatage importantes:
1. Fournissez UNIQUEMENT l'objet JSON, aucun texte supplémentaire
2. Assurez-vous que tous les caractères spéciaux dans le texte d'analyse sont correctement retranscrits
3. Le champ "analysis" doit être une seule ligne avec des nouvelles lignes représentées par \n
4. N'ajoutez aucun caractère de contrôle`

const repairPromptEN = `Your previous reply could not be parsed. Reply again with ONLY this JSON object and nothing else:
{"veracity_score": <integer between 0 and 100>, "analysis": "<single-line analysis text>"}`

const repairPromptFR = `Votre réponse précédente n'a pas pu être analysée. Répondez à nouveau avec UNIQUEMENT cet objet JSON et rien d'autre:
{"veracity_score": <integer entre 0 et 100>, "analysis": "<analyse sur une seule ligne>"}`

// Prompt returns the request for the final structured verdict
func Prompt(lang model.Language) string {
	if lang == model.French {
		return verdictPromptFR
	}
	return verdictPromptEN
}

// RepairPrompt asks the model to resend a verdict that failed to parse
func RepairPrompt(lang model.Language) string {
	if lang == model.French {
		return repairPromptFR
	}
	return repairPromptEN
}
