package search

import "fmt"

// Prompt templates for grounded answering. The instruction set keeps
// answers inside the retrieved documents, in the query's own language,
// and free of inline source references (citations are surfaced
// structurally instead).

const ragSystemPrompt = `You are a precise, factual assistant that answers questions based on the provided documents.

STRICT RULES:
1. ONLY use information explicitly stated in the documents
2. If information is not found, say "This information is not available in the provided documents"
3. Do NOT make assumptions or infer beyond what is written
4. Do NOT add external knowledge
5. Be concise and direct - give the answer only
6. LANGUAGE RULE: Always respond in the SAME language as the user's question
7. Ignore document content in other languages - extract only the relevant data from the specific language document
8. If asked for a count or number, provide the specific number clearly
9. Structure your answer with the main point first
10. Do not include any source information in the answer text`

const searchPromptTemplate = `Answer this question using ONLY information from the provided documents.

Question: %s

INSTRUCTIONS:
1. Give a DIRECT answer first (number, name, fact, etc.)
2. Respond in the SAME LANGUAGE as the question above
3. If you find relevant data in documents written in other languages, translate the answer to match the question's language
4. If the information is not in the documents, clearly say so
5. Be specific and concise
6. Do not include sources in the answer`

const summarizationPrompt = `Provide a factual summary of the key information in the provided documents.

Instructions:
- Include ONLY information explicitly stated in the documents
- Organize by main topics
- Be concise and factual
- Respond in the same language as this prompt
- Do not include sources in the summary`

const qaPromptTemplate = `Answer this question using ONLY the provided documents.

Question: %s

FORMAT YOUR ANSWER:
1. Start with the direct answer (number, name, or key fact)
2. Add 1-2 sentences of context if helpful
3. Use the SAME LANGUAGE as the question
4. If information is not found, say: "This information is not available in the documents."
5. Do not include sources in the answer`

func formatSearchPrompt(query string) string {
	return fmt.Sprintf(searchPromptTemplate, query)
}

func formatQAPrompt(question string) string {
	return fmt.Sprintf(qaPromptTemplate, question)
}
