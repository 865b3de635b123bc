package netcash

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultWSURL is the NetCash NIWS endpoint.
const DefaultWSURL = "https://ws.netcash.co.za/NIWS/niws_nif.svc"

const soapActionPrefix = "http://tempuri.org/INIWS_NIF/"

// resultMessages maps NIWS numeric result codes to readable errors.
var resultMessages = map[string]string{
	"100": "Authentication failure. Check service key.",
	"101": "Date format error. Dates should be CCYYMMDD.",
	"102": "Parameter error. Check file format.",
	"200": "General code exception. Contact NetCash support.",
	"311": "Service key not valid for this service.",
	"312": "Batch name already exists.",
	"313": "Invalid batch format.",
	"314": "Batch is empty.",
	"315": "Invalid action date.",
	"316": "Account reference not found in masterfile.",
	"317": "Invalid credit card token.",
	"318": "Credit card expired.",
}

func resultMessage(code string) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return "Unknown error: " + code
}

// APIError is a NIWS call that returned an error result code.
type APIError struct {
	Method  string
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Message }

// HTTPError is a non-2xx response from the NIWS endpoint.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("NetCash API returned %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// SOAPClient calls NIWS methods.
type SOAPClient struct {
	url  string
	http *http.Client
}

// NewSOAPClient creates a client for the NIWS endpoint at url. A nil hc uses
// a client with a 30 second timeout.
func NewSOAPClient(url string, hc *http.Client) *SOAPClient {
	if url == "" {
		url = DefaultWSURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &SOAPClient{url: url, http: hc}
}

// Call invokes method with the body produced by build and returns the text
// of the <method>Result element.
func (c *SOAPClient) Call(ctx context.Context, method string, build func(b *xmlBuilder)) (string, error) {
	var b xmlBuilder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tem="http://tempuri.org/">`)
	b.WriteString(`<soap:Body>`)
	b.open("tem:" + method)
	build(&b)
	b.close("tem:" + method)
	b.WriteString(`</soap:Body></soap:Envelope>`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(b.String()))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapActionPrefix+method)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("netcash %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return parseResult(body, method+"Result")
}

// parseResult finds the text of the named element anywhere in a SOAP
// response, ignoring namespace prefixes.
func parseResult(body []byte, element string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var fault string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse NetCash response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case element:
			var text string
			if err := dec.DecodeElement(&text, &start); err != nil {
				return "", fmt.Errorf("parse NetCash response: %w", err)
			}
			return strings.TrimSpace(text), nil
		case "faultstring":
			if err := dec.DecodeElement(&fault, &start); err != nil {
				return "", fmt.Errorf("parse NetCash response: %w", err)
			}
		}
	}
	if fault != "" {
		return "", fmt.Errorf("netcash SOAP fault: %s", strings.TrimSpace(fault))
	}
	return "", fmt.Errorf("netcash: %s not found in response", element)
}

// xmlBuilder writes request elements with escaped text content.
type xmlBuilder struct {
	strings.Builder
}

func (b *xmlBuilder) open(name string)  { b.WriteString("<" + name + ">") }
func (b *xmlBuilder) close(name string) { b.WriteString("</" + name + ">") }

func (b *xmlBuilder) elem(name, value string) {
	b.open(name)
	_ = xml.EscapeText(b, []byte(value))
	b.close(name)
}
