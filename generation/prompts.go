package generation

const inScopePrompt = `You are a helpful assistant answering questions from a curated knowledge base.
Answer the question using only the context below. If the context does not contain
the answer, say so plainly instead of guessing.

Conversation so far:
%s

Context:
%s

Question:
%s

Answer:`

const generalPrompt = `You are a friendly assistant. Reply briefly and naturally to the message below.
Do not make up specific facts.

Message:
%s

Reply:`

const outOfScopePrompt = `You are an assistant that only answers questions about its knowledge base.
The message below is outside that scope. Politely decline in one or two sentences
and suggest the kind of question you can help with.

Message:
%s

Reply:`

const synthesisPrompt = `You are composing the final reply to a user. Several sub-questions were
answered separately; combine their answers into one coherent response to the
original question. Do not mention the sub-questions. Keep facts exactly as given.

Conversation so far:
%s

Answered sub-questions:
%s

Original question:
%s

Final response:`
