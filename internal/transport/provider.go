package transport

import "sync"

// Provider lazily creates one shared Transport and tears it down on demand.
// Processes hold a Provider instead of a package-level client so tests can
// build their own per case.
type Provider struct {
	newTransport func() (Transport, error)

	mu sync.Mutex
	tr Transport
}

func NewProvider(newTransport func() (Transport, error)) *Provider {
	return &Provider{newTransport: newTransport}
}

// GetOrCreate returns the shared transport, creating it on first use.
func (p *Provider) GetOrCreate() (Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tr != nil {
		return p.tr, nil
	}
	tr, err := p.newTransport()
	if err != nil {
		return nil, err
	}
	p.tr = tr
	return tr, nil
}

// Teardown closes the shared transport. The next GetOrCreate builds a new
// one. Calling it with no transport is a no-op.
func (p *Provider) Teardown() error {
	p.mu.Lock()
	tr := p.tr
	p.tr = nil
	p.mu.Unlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}
