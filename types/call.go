package types

// FunctionCall is a fully reassembled function invocation ready for
// dispatch. Arguments is the complete argument text, valid JSON by the
// time a call reaches an executor.
type FunctionCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CallResult is the outcome of executing one function call. Output is an
// opaque JSON document produced by the executor; failed executions still
// produce a result with Success false so the conversation can recover.
type CallResult struct {
	CallID  string `json:"call_id"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}
