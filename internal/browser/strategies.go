package browser

import "strings"

// fieldStrategy is one way of locating a login form element. Strategies are
// probed in order and only until one matches, so tenant-specific selectors
// come first and generic fallbacks last.
type fieldStrategy struct {
	name     string
	selector string
}

func selectorsOf(chain []fieldStrategy) []string {
	out := make([]string, len(chain))
	for i, s := range chain {
		out[i] = s.selector
	}
	return out
}

// strategyName reports which strategy of the chain owns a matched selector.
func strategyName(chain []fieldStrategy, selector string) string {
	for _, s := range chain {
		if s.selector == selector {
			return s.name
		}
	}
	return "unknown strategy"
}

// passwordKind states which credential a provider's password step consumes.
type passwordKind int

const (
	passwordNone passwordKind = iota
	passwordPrimary
	passwordBroker
)

// providerFlow is the autofill recipe for one identity provider: locate the
// identifier field, advance, locate the password field, submit. Chains may
// legitimately fail to match; the flow then falls back to manual sign-in.
type providerFlow struct {
	provider Provider

	identifierChain []fieldStrategy
	continueChain   []fieldStrategy
	passwordChain   []fieldStrategy
	submitChain     []fieldStrategy

	passwordKind passwordKind
}

// providerFlows is the dispatch table from classified provider to recipe.
var providerFlows = map[Provider]*providerFlow{
	ProviderPrimary: {
		provider: ProviderPrimary,
		identifierChain: []fieldStrategy{
			{name: "ims email field", selector: `input#EmailPage-EmailField`},
			{name: "ims username input", selector: `input[name="username"]`},
			{name: "generic email input", selector: `input[type="email"]`},
		},
		continueChain: []fieldStrategy{
			{name: "ims email continue", selector: `button[data-id="EmailPage-ContinueButton"]`},
			{name: "generic submit", selector: `button[type="submit"]`},
		},
		passwordChain: []fieldStrategy{
			{name: "ims password field", selector: `input#PasswordPage-PasswordField`},
			{name: "ims password input", selector: `input[name="password"]`},
			{name: "generic password input", selector: `input[type="password"]`},
		},
		submitChain: []fieldStrategy{
			{name: "ims password continue", selector: `button[data-id="PasswordPage-ContinueButton"]`},
			{name: "generic submit", selector: `button[type="submit"]`},
		},
		passwordKind: passwordPrimary,
	},
	ProviderBroker: {
		provider: ProviderBroker,
		identifierChain: []fieldStrategy{
			{name: "okta classic username", selector: `input#okta-signin-username`},
			{name: "okta identifier input", selector: `input[name="identifier"]`},
			{name: "generic username input", selector: `input[name="username"]`},
		},
		continueChain: []fieldStrategy{
			{name: "okta idp discovery submit", selector: `input#idp-discovery-submit`},
			{name: "okta next button", selector: `input[type="submit"]`},
			{name: "generic submit", selector: `button[type="submit"]`},
		},
		passwordChain: []fieldStrategy{
			{name: "okta classic password", selector: `input#okta-signin-password`},
			{name: "okta passcode input", selector: `input[name="credentials.passcode"]`},
			{name: "generic password input", selector: `input[type="password"]`},
		},
		submitChain: []fieldStrategy{
			{name: "okta classic submit", selector: `input#okta-signin-submit`},
			{name: "okta verify button", selector: `input[type="submit"]`},
			{name: "generic submit", selector: `button[type="submit"]`},
		},
		passwordKind: passwordBroker,
	},
}

// flowFor returns the autofill recipe for a provider, when one exists.
func flowFor(p Provider) (*providerFlow, bool) {
	flow, ok := providerFlows[p]
	return flow, ok
}

// pushPromptPhrases are lowercase fragments of the headings the secondary
// provider shows while waiting for a push confirmation on the user's device.
// Both portal locales are covered.
var pushPromptPhrases = []string{
	// English
	"push notification",
	"check your",
	"verify your identity",
	"okta verify",
	"waiting for",
	"confirm your identity",
	// Brazilian Portuguese
	"notificação por push",
	"verifique seu",
	"confirme sua identidade",
	"aguardando confirmação",
	"toque em sim",
}

// matchesPushPrompt scans heading texts for a device-confirmation prompt and
// returns the matching heading.
func matchesPushPrompt(headings []string) (string, bool) {
	for _, heading := range headings {
		lower := strings.ToLower(strings.TrimSpace(heading))
		if lower == "" {
			continue
		}
		for _, phrase := range pushPromptPhrases {
			if strings.Contains(lower, phrase) {
				return heading, true
			}
		}
	}
	return "", false
}
