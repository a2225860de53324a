package llm

// System prompts for the three collaborator roles. Kept short and strict:
// every structured reply is funneled through function calling or bare JSON
// so the orchestration core never scrapes prose.

const toolCreationPrompt = `You design minimal sets of reusable, composable tools.
Given a user request, emit one create_tool call per tool needed to satisfy it.
Prefer a few general-purpose tools over many narrow ones; never add a tool
that only specializes an earlier one by fixing a parameter. Tool names are
lowercase snake_case. Every parameter needs a type and a description. Declare
a precise output type: use an object with named fields when a tool produces
several values, so later tools can reference individual fields.`

const planProposalPrompt = `You compose registered tools to answer a user request.
Reply with a single propose_plan call. Each call entry has a unique "id", the
"tool" name, and "args". An argument is either a literal value or a reference
to an earlier call's output written as {"$ref": {"call": "<id>", "path":
["field", ...]}}. Use a reference with a field path whenever one tool's
output feeds another tool's input. Only use registered tools.`

const valueSourcePrompt = `You are the implementation of a single tool. You will
receive the tool's schema and a set of arguments. Reply with ONLY a JSON value
that matches the declared output type exactly: an object output must contain
exactly the declared fields, a tuple output is a fixed-length JSON array, a
primitive output is a bare JSON value. No prose, no code fences.`

const summaryPrompt = `You summarize tool execution results. Given the user's
original request and the outputs of the executed tools, reply with a concise
final answer to the request. Do not mention tools or JSON.`
