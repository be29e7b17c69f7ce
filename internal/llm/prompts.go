package llm

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 模板使用 FString 语法，正文中不能出现花括号

const relevanceSystemPrompt = `You are a grader assessing relevance of a retrieved document to a user question.
If the document contains keyword(s) or semantic meaning related to the question, grade it as relevant.
Give a binary score 'yes' or 'no' to indicate whether the document is relevant to the question.
Report the score by calling the grade tool.`

const hallucinationSystemPrompt = `You are a grader assessing whether an LLM generation is grounded in / supported by a set of retrieved facts.

Your goal is to detect factual contradictions or invented information.
- Grade 'yes' if the answer is a summary, rephrasing, or direct extraction of the facts.
- Grade 'no' ONLY if the LLM makes a specific claim (like a number, date, or name) that is explicitly absent or contradicted by the facts.

Give a binary score 'yes' or 'no'. Report the score by calling the grade tool.`

const adequacySystemPrompt = `You are a grader assessing whether an answer addresses the user's question.

- Grade 'yes' if the answer provides the requested information OR if it clearly explains that the information is not available in the provided documents.
- Grade 'yes' if the answer lists relevant resources, papers, or links requested by the user.
- Grade 'no' only if the answer is completely irrelevant or ignores the question.

Give a binary score 'yes' or 'no'. Report the score by calling the grade tool.`

const plannerSystemPrompt = `For the given objective, come up with a simple step by step plan.
The plan may use the retrieve tool for searching uploaded papers, summarize_section for specific sections,
external_paper_search for arXiv, web_search for recent information and execute_code for math or plots
when the objective allows it.
Be concise. Report the steps by calling the plan tool.`

const rewritePrompt = `Look at the input and try to reason about the underlying semantic intent / meaning.
Here is the initial question:

{question}

Formulate an improved question. Reply with the question only.`

const expandPrompt = `You are a research assistant. Generate {n} alternative phrasings of the following research question.
Each variant should capture the same intent but use different terminology.

Original Question: {question}

Provide {n} variants, one per line, without numbering or extra formatting.`

const summarizePrompt = `Synthesize and summarize the following content from the '{section}' section of a research paper.

Content:
{content}`

func graderTemplate(system, contextLabel, targetLabel string) prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(contextLabel+": \n\n {context} \n\n "+targetLabel+": {target}"),
	)
}

func plannerTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(plannerSystemPrompt),
		schema.UserMessage("{objective}"),
	)
}
