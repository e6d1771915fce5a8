// api/schemas/http.go
package schemas

// Credentials carries caller-supplied login material for one request. Values
// are injected into the plan by credential resolution and never logged.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// InteractRequest is the body of POST /interact.
type InteractRequest struct {
	Command string `json:"command"`
	// URL overrides the interpreter's starting_url when set.
	URL string `json:"url,omitempty"`
	// MaxSteps caps the plan length suggested to the interpreter. The
	// executor itself runs whatever plan it is given.
	MaxSteps    int          `json:"max_steps,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// InteractData wraps the step trail in the response body.
type InteractData struct {
	Steps []StepResult `json:"steps"`
}

// InteractResponse is the body of a completed POST /interact.
type InteractResponse struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Data       *InteractData `json:"data,omitempty"`
	Screenshot string        `json:"screenshot,omitempty"`
}

// ErrorResponse is the body of a failed request (400/429/500/503).
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// DefaultMaxSteps is the plan-length cap used when a request omits max_steps.
const DefaultMaxSteps = 5

// ResultToResponse maps the executor's terminal artifact onto the wire shape.
func ResultToResponse(res *AutomationResult) InteractResponse {
	resp := InteractResponse{
		Success:    res.Success,
		Message:    res.Message,
		Screenshot: res.Screenshot,
	}
	if res.Steps != nil {
		resp.Data = &InteractData{Steps: res.Steps}
	}
	return resp
}
