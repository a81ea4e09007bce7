package pre_retrieve

// decomposePrompt asks for self-contained sub-questions. The conversation is
// used only to resolve pronouns and ellipsis.
const decomposePrompt = `You split a user's message into the minimal set of standalone questions.

Rules:
- Each question must be answerable on its own, without the other questions.
- Resolve pronouns and implicit references using the conversation below.
- If the message contains a single question, return exactly one item.
- Do not invent questions the user did not ask.

Conversation so far:
%s

User message:
%s

Respond with JSON only, in this shape:
{"sub_queries": [{"completed_query": "<standalone question>", "justification": "<why it is needed>"}]}
`

// classifyPrompt asks for a label in the closed set.
const classifyPrompt = `Classify the question for a knowledge-base assistant.

Labels:
- "in-scope": needs facts from the knowledge base to answer.
- "general": greetings, small talk or generic questions answerable without the knowledge base.
- "out-of-scope": anything the assistant should decline to answer.

Conversation so far:
%s

Question:
%s

Respond with JSON only: {"classification": "in-scope" | "general" | "out-of-scope"}
`
