package model

type Status struct {
	Armed       bool `json:"armed"`
	ArmedPublic bool `json:"armed_public"`
	Recording   bool `json:"recording"`
	TakeEvents  int  `json:"take_events"`
	Connected   bool `json:"connected"`
	TimedOut    bool `json:"timed_out"`
}

type CommandResponse struct {
	Accepted string `json:"accepted"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}
