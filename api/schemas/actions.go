// api/schemas/actions.go
package schemas

import "fmt"

// ActionType identifies one kind of browser instruction in a plan.
type ActionType string

const (
	ActionNavigate    ActionType = "navigate"
	ActionClick       ActionType = "click"
	ActionFill        ActionType = "fill"
	ActionPress       ActionType = "press"
	ActionWait        ActionType = "wait"
	ActionScroll      ActionType = "scroll"
	ActionLogin       ActionType = "login"
	ActionSearch      ActionType = "search"
	ActionLikePost    ActionType = "like_post"
	ActionCommentPost ActionType = "comment_post"
	ActionSharePost   ActionType = "share_post"
)

// AllActionTypes is the closed set of recognized action kinds.
// Plan validation rejects anything outside this set before execution starts.
var AllActionTypes = []ActionType{
	ActionNavigate,
	ActionClick,
	ActionFill,
	ActionPress,
	ActionWait,
	ActionScroll,
	ActionLogin,
	ActionSearch,
	ActionLikePost,
	ActionCommentPost,
	ActionSharePost,
}

// Valid reports whether t is part of the closed action vocabulary.
func (t ActionType) Valid() bool {
	for _, known := range AllActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CredentialRef names a caller-supplied credential an action wants injected.
type CredentialRef string

const (
	CredentialUsername CredentialRef = "username"
	CredentialPassword CredentialRef = "password"
)

// Sentinel values the interpreter prompt uses as credential placeholders.
// They are matched exactly during credential resolution; selector contents
// are never inspected.
const (
	PlaceholderUsername = "YOUR_USERNAME"
	PlaceholderPassword = "YOUR_PASSWORD"
)

// Action is one tagged instruction in a plan. The Type discriminant decides
// which of the remaining fields are meaningful; irrelevant fields stay zero.
type Action struct {
	Type ActionType `json:"type"`

	// navigate
	URL string `json:"url,omitempty"`

	// click / fill / press
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Key      string `json:"key,omitempty"`

	// wait (milliseconds)
	Timeout int `json:"timeout,omitempty"`

	// scroll
	Pixels    int    `json:"pixels,omitempty"`
	Direction string `json:"direction,omitempty"`

	// like_post / comment_post / share_post (1-based feed position)
	Index int `json:"index,omitempty"`

	// login
	UsernameSelector string `json:"username_selector,omitempty"`
	PasswordSelector string `json:"password_selector,omitempty"`
	SubmitSelector   string `json:"submit_selector,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`

	// search
	SearchSelector string `json:"search_selector,omitempty"`
	Query          string `json:"query,omitempty"`

	// Explicit credential reference, resolved before execution. Preferred
	// over the legacy sentinel placeholder values in Text.
	Credential CredentialRef `json:"credential,omitempty"`
}

// Describe returns a short human-readable label for logs and step messages.
func (a Action) Describe() string {
	switch a.Type {
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", a.URL)
	case ActionClick:
		return fmt.Sprintf("click %s", a.Selector)
	case ActionFill:
		return fmt.Sprintf("fill %s", a.Selector)
	case ActionPress:
		return fmt.Sprintf("press %s on %s", a.Key, a.Selector)
	case ActionWait:
		return fmt.Sprintf("wait %dms", a.Timeout)
	case ActionScroll:
		return fmt.Sprintf("scroll %d pixels", a.Pixels)
	case ActionLogin:
		return "login"
	case ActionSearch:
		return fmt.Sprintf("search for %q", a.Query)
	case ActionLikePost, ActionCommentPost, ActionSharePost:
		return fmt.Sprintf("%s #%d", a.Type, a.Index)
	default:
		return string(a.Type)
	}
}

// ActionPlan is the interpreter's output: an optional starting URL plus the
// ordered action sequence. Immutable once execution begins; credential
// resolution happens before the executor sees it.
type ActionPlan struct {
	StartingURL string   `json:"starting_url,omitempty"`
	Actions     []Action `json:"actions"`
}

// StepResult records the outcome of exactly one executed action.
type StepResult struct {
	Action  Action `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Screenshot is raw base64 PNG captured on failure, best effort.
	Screenshot string `json:"screenshot,omitempty"`
	// Debug carries handler-specific diagnostics, e.g. the like_post
	// before/after control snapshots.
	Debug map[string]any `json:"debug,omitempty"`
}

// AutomationResult is the terminal artifact of one request's execution.
type AutomationResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Steps   []StepResult `json:"steps"`
	// Screenshot is a data URL (data:image/png;base64,...) of the final
	// page state, or of the failure state on a fatal error.
	Screenshot string `json:"screenshot,omitempty"`
}

// ControlSnapshot captures the observable state of a UI control, used by the
// like_post verification protocol to detect whether a click took effect.
type ControlSnapshot struct {
	AriaPressed string `json:"aria_pressed"`
	AriaLabel   string `json:"aria_label"`
	Classes     string `json:"classes"`
}

// Changed reports whether the click produced an observable effect. The class
// list is recorded for diagnostics but deliberately excluded from the rule:
// feeds re-render classes constantly without any state change.
func (before ControlSnapshot) Changed(after ControlSnapshot) bool {
	return before.AriaPressed != after.AriaPressed || before.AriaLabel != after.AriaLabel
}
