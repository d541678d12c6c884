package browser

import (
	"net/url"
	"strings"
)

// Provider identifies which identity surface a URL belongs to during the
// login flow.
type Provider string

const (
	// ProviderPrimary is the portal's own identity service (Adobe IMS).
	ProviderPrimary Provider = "primary"
	// ProviderBroker is the federated secondary provider (Okta).
	ProviderBroker Provider = "broker"
	// ProviderUnknown is any host the tables below do not cover. Autofill
	// skips unknown providers and leaves the user to sign in manually.
	ProviderUnknown Provider = "unknown"
)

// Host tables are data, not logic: adding a tenant host means adding a line.
// Entries starting with a dot match as domain suffixes, others exactly.
var (
	primaryHosts = []string{
		"auth.services.adobe.com",
		"adobeid-na1.services.adobe.com",
		"ims-na1.adobelogin.com",
		".adobelogin.com",
	}

	brokerHosts = []string{
		".okta.com",
		".oktapreview.com",
		".okta-emea.com",
	}

	destinationHosts = []string{
		"experience.adobe.com",
		".my.workfront.com",
		".workfront.com",
	}
)

// classifyProvider maps a URL onto the identity provider that serves it.
// Unparseable URLs classify as unknown.
func classifyProvider(rawURL string) Provider {
	host := hostnameOf(rawURL)
	if host == "" {
		return ProviderUnknown
	}

	switch {
	case matchesHostTable(host, primaryHosts):
		return ProviderPrimary
	case matchesHostTable(host, brokerHosts):
		return ProviderBroker
	default:
		return ProviderUnknown
	}
}

// isBrokerURL reports whether the URL is served by the secondary provider.
func isBrokerURL(rawURL string) bool {
	return classifyProvider(rawURL) == ProviderBroker
}

// isDestinationURL reports whether the URL already belongs to the
// authenticated application shell.
func isDestinationURL(rawURL string) bool {
	return matchesHostTable(hostnameOf(rawURL), destinationHosts)
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func matchesHostTable(host string, table []string) bool {
	if host == "" {
		return false
	}
	for _, entry := range table {
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(host, entry) || host == strings.TrimPrefix(entry, ".") {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}
