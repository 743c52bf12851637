package config

import "time"

type RelayConfig interface {
	GetWebAPIURL() string
	GetWebAPIToken() string
	GetGraphURL() string
	GetRelayTimeout() time.Duration
	GetRelayInsecureSkipVerify() bool
	GetRelayCAFile() string
}

type Relay struct {
	WebAPIURL          string        `env:"WEBAPI_URL"`
	WebAPIToken        string        `env:"WEBAPI_TOKEN" envDefault:"access_token"`
	GraphURL           string        `env:"GRAPH_URL" envDefault:"https://graph.microsoft.com/v1.0/me"`
	Timeout            time.Duration `env:"RELAY_TIMEOUT" envDefault:"10s"`
	InsecureSkipVerify bool          `env:"RELAY_INSECURE_SKIP_VERIFY"`
	CAFile             string        `env:"RELAY_CA_FILE"`
}

var _ RelayConfig = Relay{}

func (r Relay) GetWebAPIURL() string {
	return r.WebAPIURL
}

// GetWebAPIToken names the token kind sent to the web API ("access_token" or "id_token")
func (r Relay) GetWebAPIToken() string {
	if r.WebAPIToken == "" {
		return "access_token"
	}
	return r.WebAPIToken
}

func (r Relay) GetGraphURL() string {
	return r.GraphURL
}

func (r Relay) GetRelayTimeout() time.Duration {
	if r.Timeout <= 0 {
		return 10 * time.Second
	}
	return r.Timeout
}

// GetRelayInsecureSkipVerify disables upstream certificate verification. Only ever set explicitly.
func (r Relay) GetRelayInsecureSkipVerify() bool {
	return r.InsecureSkipVerify
}

func (r Relay) GetRelayCAFile() string {
	return r.CAFile
}
