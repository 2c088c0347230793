package builders

import "github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"

// Default returns every builder in dispatch order. The order also fixes the
// order of the published catalogue.
func Default() []engine.Builder {
	return []engine.Builder{
		Deals(),
		Leads(),
		Contacts(),
		Companies(),
		Items(),
		Activities(),
		Tasks(),
		Users(),
		Misc(),
	}
}

// NewDispatcher builds a dispatcher over Default.
func NewDispatcher() (*engine.Dispatcher, error) {
	return engine.NewDispatcher(Default())
}
