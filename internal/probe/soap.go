package probe

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/hamed0406/busmonitor/internal/domain"
)

const (
	transpurificacionURL = "http://puri.fsl.sisorgcloud.com/PINBUS"
	soapTokenPath        = "/token.asmx"
	soapTripsPath        = "/viaje.asmx"
	soapContentType      = "application/soap+xml"
	agilNS               = "http://agilis.fics.fsl.sisorg.com.ar/"
)

var soapTripAttrs = []string{"TerminalOrigenNombre", "TerminalDestinoNombre", "FechaPartida", "ButacasDisponibles"}

const soapTokenEnvelope = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:agil="http://agilis.fics.fsl.sisorg.com.ar/">
   <soap:Header/>
   <soap:Body>
      <agil:GetToken>
         <agil:Key>%s</agil:Key>
         <agil:ConsumerID>%s</agil:ConsumerID>
      </agil:GetToken>
   </soap:Body>
</soap:Envelope>`

const soapTripsEnvelope = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:agil="http://agilis.fics.fsl.sisorg.com.ar/">
   <soap:Header/>
   <soap:Body>
      <agil:GetDisponiblesIda>
         <agil:Token>%s</agil:Token>
         <agil:Fecha>%s</agil:Fecha>
         <agil:TerminalOrigenID>1</agil:TerminalOrigenID>
         <agil:TerminalDestinoID>7</agil:TerminalDestinoID>
         <agil:FechaAbierta>0</agil:FechaAbierta>
         <agil:BuscarTodosLosHorarios>1</agil:BuscarTodosLosHorarios>
         <agil:PuestoTrabajoID>1</agil:PuestoTrabajoID>
         <agil:Operacion>1</agil:Operacion>
         <agil:ModoResultados>0</agil:ModoResultados>
         <agil:CantidadPasajeros>0</agil:CantidadPasajeros>
      </agil:GetDisponiblesIda>
   </soap:Body>
</soap:Envelope>`

// SOAPProbe talks SOAP 1.2. Both result elements carry XML serialized as
// text, so every response is decoded twice: envelope first, then the inner
// document found in the result element.
type SOAPProbe struct {
	base
	key        string
	consumerID string
}

func NewSOAPProbe(o Options) *SOAPProbe {
	return &SOAPProbe{base: newBase(o, transpurificacionURL), key: o.Key, consumerID: o.ConsumerID}
}

func (p *SOAPProbe) Check(ctx context.Context) Result {
	return guard(p.name, func() Result { return p.check(ctx) })
}

func (p *SOAPProbe) check(ctx context.Context) Result {
	secrets := secretForms(p.key, p.consumerID)

	token, req, resp, err := p.login(ctx)
	if err != nil {
		return failure(req, resp, secrets, err)
	}
	secrets = append(secrets, secretForms(token)...)

	date := p.now().Format("02/01/2006 00:00:00")
	headers := map[string]string{"Content-Type": soapContentType}
	body := fmt.Sprintf(soapTripsEnvelope, escapeXML(token), date)
	url := p.baseURL + soapTripsPath
	req = domain.RequestSnapshot{URL: url, Method: http.MethodPost, Headers: headers, Body: body}

	ex, err := p.do(ctx, http.MethodPost, url, headers, []byte(body))
	if err != nil {
		return failure(req, rawText(ex), secrets, err)
	}
	raw := string(ex.body)

	inner, found, err := soapResult(ex.body, "GetDisponiblesIdaResult")
	if err != nil {
		return failure(req, raw, secrets, fmt.Errorf("%w: SOAP envelope: %v", ErrParse, err))
	}
	if !found {
		return failure(req, raw, secrets, fmt.Errorf("%w: GetDisponiblesIdaResult not found in SOAP response", ErrSchema))
	}

	trips, err := elementsAttrs([]byte(inner), "viaje")
	if err != nil {
		return failure(req, raw, secrets, fmt.Errorf("%w: inner XML: %v", ErrParse, err))
	}

	parsed := map[string]any{
		"total_viajes":   len(trips),
		"fecha_consulta": date,
	}
	if len(trips) == 0 {
		parsed["mensaje"] = "no trips available for the requested date"
		return success(req, map[string]any{"xml_response": raw, "parsed_data": parsed}, secrets)
	}

	first := trips[0]
	var missing []string
	for _, a := range soapTripAttrs {
		if _, ok := first[a]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		avail := make([]string, 0, len(first))
		for k := range first {
			avail = append(avail, k)
		}
		sort.Strings(avail)
		return failure(req, raw, secrets, fmt.Errorf("%w: viaje missing required attributes %v, available %v", ErrSchema, missing, avail))
	}
	parsed["primer_viaje"] = first
	return success(req, map[string]any{"xml_response": raw, "parsed_data": parsed}, secrets)
}

func (p *SOAPProbe) login(ctx context.Context) (string, domain.RequestSnapshot, any, error) {
	headers := map[string]string{"Content-Type": soapContentType}
	body := fmt.Sprintf(soapTokenEnvelope, escapeXML(p.key), escapeXML(p.consumerID))
	url := p.baseURL + soapTokenPath
	req := domain.RequestSnapshot{URL: url, Method: http.MethodPost, Headers: headers, Body: body}

	ex, err := p.do(ctx, http.MethodPost, url, headers, []byte(body))
	if err != nil {
		return "", req, rawText(ex), err
	}
	raw := string(ex.body)

	inner, found, err := soapResult(ex.body, "GetTokenResult")
	if err != nil {
		return "", req, raw, fmt.Errorf("%w: SOAP envelope: %v", ErrParse, err)
	}
	if !found {
		return "", req, raw, fmt.Errorf("%w: token not found in SOAP response", ErrAuth)
	}

	attrs, err := rootAttrs([]byte(inner))
	if err != nil {
		return "", req, raw, fmt.Errorf("%w: token XML: %v", ErrParse, err)
	}
	token := attrs["Token"]
	if token == "" {
		return "", req, raw, fmt.Errorf("%w: Token attribute not found in token XML", ErrAuth)
	}
	return token, req, raw, nil
}

// soapResult is the first decoding stage: it returns the text content of the
// named result element in the agil namespace. found is false when the element
// is missing or empty.
func soapResult(doc []byte, local string) (string, bool, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != local || se.Name.Space != agilNS {
			continue
		}
		var el struct {
			Text string `xml:",chardata"`
		}
		if err := dec.DecodeElement(&el, &se); err != nil {
			return "", false, err
		}
		text := strings.TrimSpace(el.Text)
		return text, text != "", nil
	}
}

// rootAttrs is a second-stage decode returning the root element's attributes.
func rootAttrs(doc []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no root element")
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return attrMap(se), nil
		}
	}
}

// elementsAttrs is a second-stage decode collecting the attributes of every
// element with the given local name. The whole document must be well formed.
func elementsAttrs(doc []byte, local string) ([]map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var out []map[string]string
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			sawRoot = true
			if se.Name.Local == local {
				out = append(out, attrMap(se))
			}
		}
	}
	if !sawRoot {
		return nil, errors.New("no root element")
	}
	return out, nil
}

func attrMap(se xml.StartElement) map[string]string {
	m := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		m[a.Name.Local] = a.Value
	}
	return m
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// secretForms returns each secret as written raw and as it appears escaped in
// an XML body.
func secretForms(secrets ...string) []string {
	out := make([]string, 0, len(secrets)*2)
	for _, s := range secrets {
		out = append(out, s)
		if e := escapeXML(s); e != s {
			out = append(out, e)
		}
	}
	return out
}
