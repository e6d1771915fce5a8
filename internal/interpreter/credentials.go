// internal/interpreter/credentials.go
package interpreter

import "webpilot/api/schemas"

// ResolveCredentials substitutes caller-supplied credentials into a plan
// before execution. Resolution is marker-driven, never selector-sniffing:
//
//  1. An explicit Credential reference on the action wins.
//  2. Fill actions whose text equals one of the sentinel placeholder values
//     emitted by the interpreter prompt are substituted for compatibility.
//  3. Login actions always receive both credentials.
//
// The plan is modified in place; a nil creds is a no-op.
func ResolveCredentials(plan *schemas.ActionPlan, creds *schemas.Credentials) {
	if plan == nil || creds == nil {
		return
	}

	for idx := range plan.Actions {
		action := &plan.Actions[idx]
		switch action.Type {
		case schemas.ActionFill:
			switch action.Credential {
			case schemas.CredentialUsername:
				action.Text = creds.Username
				continue
			case schemas.CredentialPassword:
				action.Text = creds.Password
				continue
			}
			switch action.Text {
			case schemas.PlaceholderUsername:
				action.Text = creds.Username
			case schemas.PlaceholderPassword:
				action.Text = creds.Password
			}
		case schemas.ActionLogin:
			action.Username = creds.Username
			action.Password = creds.Password
		}
	}
}
