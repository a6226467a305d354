// Package react runs the reasoning and acting loop of the agent.
//
// A query starts a transcript of a rendered system prompt and the user
// question. On every turn the model either answers inside
// <final_answer>...</final_answer> or requests one tool call inside
// <action>name(key="value", ...)</action>. The Driver invokes the tool
// through the Registry and feeds the result back as an
// <observation>...</observation> user turn, until an answer is produced,
// a fatal error occurs or the turn limit is reached.
package react
