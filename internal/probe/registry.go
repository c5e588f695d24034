package probe

import "fmt"

// Variant names the closed set of probe protocols.
type Variant string

const (
	VariantBearer  Variant = "bearer"
	VariantSession Variant = "session"
	VariantSOAP    Variant = "soap"
)

var constructors = map[Variant]func(Options) Prober{
	VariantBearer:  func(o Options) Prober { return NewBearerProbe(o) },
	VariantSession: func(o Options) Prober { return NewSessionProbe(o) },
	VariantSOAP:    func(o Options) Prober { return NewSOAPProbe(o) },
}

// New builds the probe for variant v.
func New(v Variant, o Options) (Prober, error) {
	c, ok := constructors[v]
	if !ok {
		return nil, fmt.Errorf("unknown probe variant %q", v)
	}
	return c(o), nil
}

var (
	_ Prober = (*BearerProbe)(nil)
	_ Prober = (*SessionProbe)(nil)
	_ Prober = (*SOAPProbe)(nil)
)
